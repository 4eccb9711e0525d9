package dbtest

import (
	"fmt"
	"testing"

	"github.com/go-pg/pg/v10"
	"github.com/stretchr/testify/require"
	dbops "github.com/voiceops/sipdb/database"
	sipdbutil "github.com/voiceops/sipdb/util"
)

// Current schema version. This value must be bumped up every
// time the schema is updated.
const expectedSchemaVersion int64 = 5

// The schema version at which the regcontext column was added to
// ps_globals, and the version directly preceding it.
const (
	regcontextVersion    = 5
	preRegcontextVersion = 4
)

// Common function which tests a selected migration action.
func testMigrateAction(t *testing.T, db *dbops.PgDB, expectedOldVersion, expectedNewVersion int64, action ...string) {
	oldVersion, newVersion, err := dbops.Migrate(db, action...)
	require.NoError(t, err)

	// Check that old database version has been returned as expected.
	require.Equal(t, expectedOldVersion, oldVersion)

	// Check that new database version has been returned as expected.
	require.Equal(t, expectedNewVersion, newVersion)
}

// Checks that schema version can be fetched from the database and
// that it is set to an expected value.
func testCurrentVersion(t *testing.T, db *dbops.PgDB, expected int64) {
	current, err := dbops.CurrentVersion(db)
	require.NoError(t, err)
	require.Equal(t, expected, current)
}

// Describes a column of the ps_globals table as reported by the
// information schema.
type columnDescription struct {
	ColumnName             string
	DataType               string
	CharacterMaximumLength *int
	IsNullable             string
	ColumnDefault          *string
}

// Fetches descriptions of all columns of a given table ordered by their
// ordinal positions.
func getTableColumns(t *testing.T, db *dbops.PgDB, tableName string) []columnDescription {
	var columns []columnDescription
	_, err := db.Query(&columns, `
        SELECT column_name, data_type, character_maximum_length, is_nullable, column_default
        FROM information_schema.columns
        WHERE table_name = ?
        ORDER BY ordinal_position`,
		tableName)
	require.NoError(t, err)
	return columns
}

// Fetches a description of a single column. Returns nil if the column
// doesn't exist.
func getTableColumn(t *testing.T, db *dbops.PgDB, tableName, columnName string) *columnDescription {
	for _, column := range getTableColumns(t, db, tableName) {
		if column.ColumnName == columnName {
			return &column
		}
	}
	return nil
}

// Test migrations between different database versions.
func TestMigrate(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	// Create versioning table in the database.
	testMigrateAction(t, db, 0, 0, "init")
	// Migrate from version 0 to version 1.
	testMigrateAction(t, db, 0, 1, "up", "1")
	// Migrate from version 1 to version 0.
	testMigrateAction(t, db, 1, 0, "down")
	// Migrate to version 1 again.
	testMigrateAction(t, db, 0, 1, "up", "1")
	// Check current version.
	testMigrateAction(t, db, 1, 1, "version")
	// Reset to the initial version.
	testMigrateAction(t, db, 1, 0, "reset")
}

// Test initialization and migration in a single step.
func TestInitMigrate(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	// Migrate from version 0 to version 1.
	testMigrateAction(t, db, 0, 1, "up", "1")
}

// Tests that the database schema can be initialized and migrated to the
// latest version with one call.
func TestInitMigrateToLatest(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	o, n, err := dbops.MigrateToLatest(db)
	require.NoError(t, err)
	require.EqualValues(t, 0, o)
	require.Equal(t, expectedSchemaVersion, n)
}

// Test that available schema version is returned as expected.
func TestAvailableVersion(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	_, _, err := dbops.Migrate(db, "init")
	require.NoError(t, err)
	_, _, err = dbops.Migrate(db, "up")
	require.NoError(t, err)

	avail := dbops.AvailableVersion()
	require.Equal(t, expectedSchemaVersion, avail)
}

// Test that current version is returned from the database.
func TestCurrentVersion(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	// Initialize migrations.
	testMigrateAction(t, db, 0, 0, "init")
	// Initially, the version should be set to 0.
	testCurrentVersion(t, db, 0)
	// Go one version up.
	testMigrateAction(t, db, 0, 1, "up", "1")
	// Check that the current version is now set to 1.
	testCurrentVersion(t, db, 1)
}

// Test that a targeted downgrade steps through all intermediate versions
// and reports the start and final versions.
func TestMigrateDownToVersion(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	testMigrateAction(t, db, 0, expectedSchemaVersion, "up")
	testMigrateAction(t, db, expectedSchemaVersion, 2, "down", "2")
	testCurrentVersion(t, db, 2)

	// Downgrading to the current or a newer version is rejected.
	_, _, err := dbops.Migrate(db, "down", "3")
	require.Error(t, err)
}

// Test that dropping the schema removes the versioning table and the
// database can be initialized from scratch afterwards.
func TestDropSchema(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_, _, err := dbops.MigrateToLatest(db)
	require.NoError(t, err)

	require.NoError(t, dbops.DropSchema(db))
	_, err = db.Exec("SELECT count(*) FROM gopg_migrations;")
	require.Error(t, err)

	// Dropping an uninitialized schema is not an error.
	require.NoError(t, dbops.DropSchema(db))

	_, newVersion, err := dbops.MigrateToLatest(db)
	require.NoError(t, err)
	require.Equal(t, expectedSchemaVersion, newVersion)
}

// Test that the regcontext migration adds a nullable VARCHAR(80) column
// without a default value and that migrating down removes it again
// leaving the ps_globals definition untouched.
func TestMigration5AddRegcontextToGlobals(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	// Migrate to the version preceding the regcontext migration.
	testMigrateAction(t, db, 0, preRegcontextVersion, "up", fmt.Sprint(preRegcontextVersion))

	// The column must not exist yet.
	require.Nil(t, getTableColumn(t, db, "ps_globals", "regcontext"))

	// Remember the table definition before the migration.
	before := getTableColumns(t, db, "ps_globals")

	// Insert a row representing the pre-existing configuration.
	_, err := db.Exec(`INSERT INTO ps_globals (id, max_forwards) VALUES ('global', 70);`)
	require.NoError(t, err)

	// Apply the regcontext migration.
	testMigrateAction(t, db, preRegcontextVersion, regcontextVersion, "up", fmt.Sprint(regcontextVersion))

	column := getTableColumn(t, db, "ps_globals", "regcontext")
	require.NotNil(t, column)
	require.Equal(t, "character varying", column.DataType)
	require.NotNil(t, column.CharacterMaximumLength)
	require.EqualValues(t, 80, *column.CharacterMaximumLength)
	require.Equal(t, "YES", column.IsNullable)
	require.Nil(t, column.ColumnDefault)

	// The pre-existing row must have the column unset.
	var regcontext *string
	_, err = db.QueryOne(pg.Scan(&regcontext), `SELECT regcontext FROM ps_globals WHERE id = 'global';`)
	require.NoError(t, err)
	require.Nil(t, regcontext)

	// Revert the migration. The column and its data are gone.
	testMigrateAction(t, db, regcontextVersion, preRegcontextVersion, "down", fmt.Sprint(preRegcontextVersion))
	require.Nil(t, getTableColumn(t, db, "ps_globals", "regcontext"))

	// The round trip must leave the table definition identical.
	after := getTableColumns(t, db, "ps_globals")
	require.Equal(t, before, after)
}

// Test that re-applying the forward DDL and reverting without applying
// fail with the expected error classes reported by the database.
func TestRegcontextDDLConflicts(t *testing.T) {
	db, _, teardown := SetupDatabaseTestCase(t)
	defer teardown()

	_ = dbops.DropSchema(db)

	testMigrateAction(t, db, 0, regcontextVersion, "up")

	// The column already exists at the head version.
	_, err := db.Exec(`ALTER TABLE ps_globals ADD COLUMN regcontext VARCHAR(80);`)
	require.Error(t, err)
	var pgErr pg.Error
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, "42701", pgErr.Field('C')) // duplicate_column

	// After migrating down the column doesn't exist.
	testMigrateAction(t, db, regcontextVersion, preRegcontextVersion, "down", fmt.Sprint(preRegcontextVersion))

	_, err = db.Exec(`ALTER TABLE ps_globals DROP COLUMN regcontext;`)
	require.Error(t, err)
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, "42703", pgErr.Field('C')) // undefined_column
}

// Test creating a new database and a user with access to this database.
func TestCreateDatabase(t *testing.T) {
	_, settings, teardown := SetupDatabaseTestCaseAsMaintenance(t)
	defer teardown()

	// Create a database and the user with the same name.
	dbName := fmt.Sprintf("sipdb%d", 5910731)
	err := dbops.CreateDatabase(*settings, dbName, dbName, "pass", true)
	require.NoError(t, err)

	// Try to connect to this database using the user name.
	opts := *settings
	opts.User = dbName
	opts.Password = "pass"
	opts.DBName = dbName

	db2, err := dbops.NewPgDBConn(&opts)
	require.NoError(t, err)
	require.NotNil(t, db2)
	defer db2.Close()

	// Re-creating the same database with the force flag should not fail.
	err = dbops.CreateDatabase(*settings, dbName, dbName, "pass", true)
	require.NoError(t, err)

	// Attempt to create the database without the force flag should not
	// fail either because the database already exists.
	generatedPassword, err := sipdbutil.Base64Random(24)
	require.NoError(t, err)
	err = dbops.CreateDatabase(*settings, dbName, dbName, generatedPassword, false)
	require.NoError(t, err)
}
