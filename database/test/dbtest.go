// Package dbtest runs every test case against its own clone of the
// template database, so the cases never observe each other's schema
// changes. The template database (sipdbtest by default) must exist and
// is never touched directly.
package dbtest

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	dbops "github.com/voiceops/sipdb/database"
	"github.com/voiceops/sipdb/database/maintenance"
)

// The connection defaults of the test environment. The SIPDB_DATABASE_*
// environment variables take precedence.
func connectionDefaults() *dbops.DatabaseCLIFlagsWithMaintenance {
	flags := &dbops.DatabaseCLIFlagsWithMaintenance{
		DatabaseCLIFlags: dbops.DatabaseCLIFlags{
			DBName: "sipdbtest",
			User:   "sipdbtest",
			Host:   "/var/run/postgresql",
			Port:   5432,
		},
		MaintenanceDBName: "postgres",
		MaintenanceUser:   "postgres",
	}
	flags.ReadFromEnvironment()
	return flags
}

// Clones the template database under a random name (e.g.
// sipdbtest9817239871871478571) and returns the settings for the regular
// and the maintenance access to the clone.
func cloneTemplateDatabase(tb testing.TB) (settings, admin *dbops.DatabaseSettings) {
	tb.Helper()
	flags := connectionDefaults()

	admin, err := flags.ConvertToMaintenanceDatabaseSettings()
	require.NoError(tb, err)

	db, err := dbops.NewPgDBConn(admin)
	require.NoError(tb, err)
	defer db.Close()

	clone := fmt.Sprintf("%s%d", flags.DBName, rand.Int63()) //nolint:gosec
	require.NoError(tb, maintenance.DropDatabase(db, clone))
	created, err := maintenance.CloneDatabase(db, clone, flags.DBName)
	require.NoError(tb, err)
	require.True(tb, created)

	settings, err = flags.ConvertToDatabaseSettings()
	require.NoError(tb, err)
	settings.DBName = clone
	admin.DBName = clone
	return settings, admin
}

func connect(tb testing.TB, settings *dbops.DatabaseSettings) (*dbops.PgDB, func()) {
	tb.Helper()
	db, err := dbops.NewPgDBConn(settings)
	require.NoError(tb, err)
	return db, func() { db.Close() }
}

// Prepares a fresh clone of the template database and connects to it with
// the regular test credentials. The returned teardown function must be
// deferred by the caller.
func SetupDatabaseTestCase(tb testing.TB) (*dbops.PgDB, *dbops.DatabaseSettings, func()) {
	tb.Helper()
	settings, _ := cloneTemplateDatabase(tb)
	db, teardown := connect(tb, settings)
	return db, settings, teardown
}

// Like SetupDatabaseTestCase but connects with the maintenance (admin)
// credentials. Needed by the cases exercising the administrative DDL.
func SetupDatabaseTestCaseAsMaintenance(tb testing.TB) (*dbops.PgDB, *dbops.DatabaseSettings, func()) {
	tb.Helper()
	_, admin := cloneTemplateDatabase(tb)
	db, teardown := connect(tb, admin)
	return db, admin, teardown
}
