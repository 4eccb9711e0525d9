package dbops

import (
	"context"
	"strconv"

	"github.com/go-pg/migrations/v8"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/voiceops/sipdb/database/maintenance"

	// The blank import registers the schema migrations in the default
	// collection of the go-pg migrations framework.
	_ "github.com/voiceops/sipdb/database/migrations"
)

// Checks if the schema versioning table exists, i.e. the 'init' action
// has already run against this database.
func schemaInitialized(db *PgDB) bool {
	var count int
	_, err := db.QueryOne(pg.Scan(&count), "SELECT count(*) FROM gopg_migrations")
	return err == nil
}

// Applies a migration action. The action is one of the operations
// understood by go-pg/migrations (init, up, down, reset, version,
// set_version), optionally followed by a target version. Returns the
// schema versions before and after.
func Migrate(db *PgDB, action ...string) (oldVersion, newVersion int64, err error) {
	// "up" on a pristine database implies "init".
	if len(action) > 0 && action[0] == "up" && !schemaInitialized(db) {
		if oldVersion, newVersion, err = migrations.Run(db, "init"); err != nil {
			return oldVersion, newVersion, errors.Wrap(err, "problem initiating database")
		}
	}

	if len(action) > 1 && action[0] == "down" {
		return migrateDownTo(db, action[1])
	}

	oldVersion, newVersion, err = migrations.Run(db, action...)
	if err != nil {
		err = errors.Wrapf(err, "problem migrating database, old: %d, new: %d", oldVersion, newVersion)
	}
	return oldVersion, newVersion, err
}

// Downgrades the schema to the given version. go-pg/migrations can only
// step a single migration down at a time, so a targeted downgrade is a
// sequence of single steps.
func migrateDownTo(db *PgDB, rawTarget string) (oldVersion, newVersion int64, err error) {
	current, _, err := migrations.Run(db, "version")
	if err != nil {
		return current, current, errors.Wrap(err, "problem checking database version")
	}

	target, err := strconv.ParseInt(rawTarget, 10, 64)
	if err != nil {
		return current, current, errors.Wrapf(err, "invalid target version %s (expected an integer)", rawTarget)
	}
	if target >= current {
		return current, current, errors.Errorf("can't migrate down, current version %d, want to migrate to %d", current, target)
	}

	for newVersion = current; newVersion > target; {
		if _, newVersion, err = migrations.Run(db, "down"); err != nil {
			return current, newVersion, errors.Wrap(err, "problem migrating database down")
		}
	}
	return current, newVersion, nil
}

// Brings the schema to the latest version, initializing the versioning
// first when needed.
func MigrateToLatest(db *PgDB) (oldVersion, newVersion int64, err error) {
	return Migrate(db, "up")
}

// Reverts all migrations and removes the versioning table and its id
// sequence, leaving the database in the state preceding the first 'init'.
func DropSchema(db *PgDB) error {
	if db == nil {
		return errors.New("database is nil")
	}
	if !schemaInitialized(db) {
		return nil
	}

	if _, _, err := Migrate(db, "reset"); err != nil {
		return err
	}

	return db.RunInTransaction(context.Background(), func(tx *pg.Tx) error {
		if err := maintenance.DropTable(tx, "gopg_migrations"); err != nil {
			return err
		}
		return maintenance.DropSequence(tx, "gopg_migrations_id_seq")
	})
}

// The highest schema version shipped with this build.
func AvailableVersion() int64 {
	registered := migrations.RegisteredMigrations()
	if len(registered) == 0 {
		return 0
	}
	return registered[len(registered)-1].Version
}

// The schema version currently recorded in the database.
func CurrentVersion(db *PgDB) (int64, error) {
	version, err := migrations.Version(db)
	return version, errors.Wrap(err, "problem checking database version")
}

// Prepares a new database for the telephony realtime configuration and a
// user that can access it. Must be called with the maintenance (admin)
// credentials, typically the postgres user on the postgres database. With
// force, an existing database and user are dropped and re-created.
func CreateDatabase(settings DatabaseSettings, dbName, userName, password string, force bool) error {
	db, err := NewPgDBConn(&settings)
	if err != nil {
		return err
	}

	if force {
		if err = maintenance.DropDatabase(db, dbName); err != nil {
			db.Close()
			return err
		}
	}

	// CREATE DATABASE cannot run in a transaction.
	created, err := maintenance.EnsureDatabase(db, dbName)
	db.Close()
	if err != nil {
		return err
	}
	if !created {
		log.Infof("Database '%s' already exists", dbName)
	}

	// The user provisioning runs connected to the new database, so the
	// schema grants land in the right place.
	settings.DBName = dbName
	db, err = NewPgDBConn(&settings)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RunInTransaction(context.Background(), func(tx *pg.Tx) error {
		return provisionUser(tx, dbName, userName, password, force)
	})
}

// Creates the database user and grants it access to the database and the
// public schema. With force an existing user is dropped first.
func provisionUser(tx *pg.Tx, dbName, userName, password string, force bool) error {
	exists, err := maintenance.UserExists(tx, userName)
	if err != nil {
		return err
	}

	if exists && force {
		if err = maintenance.RevokeSchemaAccess(tx, "public", userName); err != nil {
			return err
		}
		if err = maintenance.DropUser(tx, userName); err != nil {
			return err
		}
		exists = false
	}

	if exists {
		log.Infof("User '%s' already exists", userName)
	} else if err = maintenance.CreateUser(tx, userName); err != nil {
		return err
	}

	if err = maintenance.GrantDatabaseAccess(tx, dbName, userName); err != nil {
		return err
	}
	// Newer PostgreSQL releases no longer grant CREATE on the public
	// schema to every role.
	if err = maintenance.GrantSchemaAccess(tx, "public", userName); err != nil {
		return err
	}

	if password == "" {
		return nil
	}
	return maintenance.SetUserPassword(tx, userName, password)
}
