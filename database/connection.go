package dbops

import (
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// How many times the initial ping is repeated before giving up.
	// The database container used in the demo and CI environments may
	// still be starting up when the tool runs.
	connPingAttempts = 10
	connPingDelay    = 2 * time.Second
)

// Opens a database connection with the provided settings and pings it.
// It doesn't run the schema migrations. The returned instance must be
// closed by the caller.
func NewPgDBConn(settings *DatabaseSettings) (*PgDB, error) {
	opts, err := settings.convertToPgOptions()
	if err != nil {
		return nil, errors.WithMessage(err, "invalid database settings")
	}

	db := pg.Connect(opts)
	db.AddQueryHook(NewQuerySizeLimiter(maxQueryPayload))
	if settings.TraceSQL.IsEnabled() {
		db.AddQueryHook(queryTracer{})
	}

	var ping int
	for attempt := 1; ; attempt++ {
		_, err = db.QueryOne(pg.Scan(&ping), "SELECT 1")
		if err == nil || attempt == connPingAttempts {
			break
		}
		log.WithError(err).Infof("Retrying database connection, attempt %d", attempt)
		time.Sleep(connPingDelay)
	}
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to connect to the database using provided credentials")
	}
	return db, nil
}

// Opens a database connection and brings the schema to the latest
// version. It is used by the commands that need an up-to-date schema
// rather than raw access to the database.
func NewApplicationDatabaseConn(settings *DatabaseSettings) (*PgDB, error) {
	db, err := NewPgDBConn(settings)
	if err != nil {
		return nil, err
	}

	oldVersion, newVersion, err := MigrateToLatest(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if oldVersion != newVersion {
		log.WithFields(log.Fields{
			"old-version": oldVersion,
			"new-version": newVersion,
		}).Info("Successfully migrated database schema")
	}

	log.Infof("Connected to database %s:%d, schema version: %d", settings.Host, settings.Port, newVersion)
	return db, nil
}
