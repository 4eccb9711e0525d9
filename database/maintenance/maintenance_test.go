package maintenance_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	dbops "github.com/voiceops/sipdb/database"
	"github.com/voiceops/sipdb/database/maintenance"
	dbtest "github.com/voiceops/sipdb/database/test"
)

// Test that a fresh database is created and accepts connections.
func TestEnsureDatabase(t *testing.T) {
	db, settings, teardown := dbtest.SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()
	dbName := fmt.Sprintf("%s_ensure", settings.DBName)

	created, err := maintenance.EnsureDatabase(db, dbName)
	require.NoError(t, err)
	require.True(t, created)

	settings.DBName = dbName
	conn, err := dbops.NewPgDBConn(settings)
	require.NoError(t, err)
	conn.Close()
}

// Test that an existing database is tolerated and reported as not created.
func TestEnsureDatabaseAlreadyExists(t *testing.T) {
	db, settings, teardown := dbtest.SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()

	created, err := maintenance.EnsureDatabase(db, settings.DBName)
	require.NoError(t, err)
	require.False(t, created)
}

// Test that a database is cloned from a template.
func TestCloneDatabase(t *testing.T) {
	db, settings, teardown := dbtest.SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()
	dbName := fmt.Sprintf("%s_clone", settings.DBName)

	created, err := maintenance.CloneDatabase(db, dbName, settings.DBName)
	require.NoError(t, err)
	require.True(t, created)
}

// Test that dropping a database works and that dropping it again is not
// an error.
func TestDropDatabase(t *testing.T) {
	db, settings, teardown := dbtest.SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()
	dbName := fmt.Sprintf("%s_drop", settings.DBName)
	created, err := maintenance.EnsureDatabase(db, dbName)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, maintenance.DropDatabase(db, dbName))
	require.NoError(t, maintenance.DropDatabase(db, dbName))
}

// Test the full user lifecycle: create, detect, grant, set password,
// revoke and drop.
func TestUserLifecycle(t *testing.T) {
	db, settings, teardown := dbtest.SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()
	userName := fmt.Sprintf("%s_lifecycle", settings.User)
	if exists, _ := maintenance.UserExists(db, userName); exists {
		_ = maintenance.DropUser(db, userName)
	}
	defer func() {
		_ = maintenance.RevokeSchemaAccess(db, "public", userName)
		_ = maintenance.DropUser(db, userName)
	}()

	require.NoError(t, maintenance.CreateUser(db, userName))

	exists, err := maintenance.UserExists(db, userName)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, maintenance.GrantDatabaseAccess(db, settings.DBName, userName))
	require.NoError(t, maintenance.GrantSchemaAccess(db, "public", userName))
	require.NoError(t, maintenance.SetUserPassword(db, userName, "sipdb123"))
	require.NoError(t, maintenance.RevokeSchemaAccess(db, "public", userName))

	require.NoError(t, maintenance.DropUser(db, userName))
	exists, err = maintenance.UserExists(db, userName)
	require.NoError(t, err)
	require.False(t, exists)
}

// Test that the existence check is negative for an unknown role and that
// dropping an unknown role is not an error.
func TestUnknownUser(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()

	exists, err := maintenance.UserExists(db, "sipdb_test_unknown_user")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, maintenance.DropUser(db, "sipdb_test_unknown_user"))
}

// Test that an existing table is dropped and a missing one is tolerated.
func TestDropTable(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()
	_, err := db.Exec("CREATE TABLE drop_table_test (id INTEGER);")
	require.NoError(t, err)

	require.NoError(t, maintenance.DropTable(db, "drop_table_test"))
	_, err = db.Exec("SELECT * FROM drop_table_test;")
	require.Error(t, err)

	require.NoError(t, maintenance.DropTable(db, "drop_table_test"))
}

// Test that dropping a missing sequence is tolerated.
func TestDropSequenceMissing(t *testing.T) {
	db, _, teardown := dbtest.SetupDatabaseTestCase(t)
	defer teardown()

	require.NoError(t, maintenance.DropSequence(db, "missing_sequence"))
}
