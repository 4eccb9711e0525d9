// Package maintenance collects the administrative DDL that has to run
// with elevated privileges: creating and dropping databases, provisioning
// the database user, and removing the schema versioning artifacts. The
// statements are issued verbatim, so the callers are expected to pass
// trusted identifiers only.
package maintenance

import (
	"fmt"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
)

// PostgreSQL error code reported when a database being created already
// exists (duplicate_database).
const errCodeDuplicateDatabase = "42P04"

// Extracts the PostgreSQL error code from err. Returns an empty string
// for non-database errors.
func sqlErrorCode(err error) string {
	var pgErr pg.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

// Runs a single statement and wraps a failure with the given message.
func execStmt(dbi pg.DBI, failMsg, stmt string, params ...any) error {
	if _, err := dbi.Exec(stmt, params...); err != nil {
		return errors.Wrap(err, failMsg)
	}
	return nil
}

// Creates a database unless one with this name already exists. CREATE
// DATABASE cannot run inside a transaction, so there is no atomic
// create-if-missing; an existing database is detected by the error code
// instead. Reports whether the database was actually created.
func EnsureDatabase(db *pg.DB, dbName string) (bool, error) {
	_, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s;", dbName))
	switch {
	case err == nil:
		return true, nil
	case sqlErrorCode(err) == errCodeDuplicateDatabase:
		return false, nil
	default:
		return false, errors.Wrapf(err, `problem creating the database "%s"`, dbName)
	}
}

// Creates a database as a copy of the template database. Like
// EnsureDatabase, an already existing target is not an error.
func CloneDatabase(db *pg.DB, dbName, template string) (bool, error) {
	_, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s TEMPLATE %s;", dbName, template))
	switch {
	case err == nil:
		return true, nil
	case sqlErrorCode(err) == errCodeDuplicateDatabase:
		return false, nil
	default:
		return false, errors.Wrapf(err, `problem creating the database "%s" from the template "%s"`, dbName, template)
	}
}

// Removes a database if it exists.
func DropDatabase(db *pg.DB, dbName string) error {
	return execStmt(db,
		fmt.Sprintf(`problem dropping the database "%s"`, dbName),
		fmt.Sprintf("DROP DATABASE IF EXISTS %s;", dbName))
}

// Checks if a role with the given name exists.
func UserExists(dbi pg.DBI, userName string) (bool, error) {
	var found int
	_, err := dbi.Query(pg.Scan(&found), "SELECT 1 FROM pg_roles WHERE rolname = ?;", userName)
	if err != nil {
		return false, errors.Wrapf(err, `problem checking if the user "%s" exists`, userName)
	}
	return found == 1, nil
}

// Creates a login role with the given name.
func CreateUser(dbi pg.DBI, userName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem creating the user "%s"`, userName),
		"CREATE USER ?;", pg.Ident(userName))
}

// Removes a role if it exists.
func DropUser(dbi pg.DBI, userName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem dropping the user "%s"`, userName),
		"DROP USER IF EXISTS ?;", pg.Ident(userName))
}

// Grants the user full access to the given database.
func GrantDatabaseAccess(dbi pg.DBI, dbName, userName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem granting privileges on database "%s" to user "%s"`, dbName, userName),
		"GRANT ALL PRIVILEGES ON DATABASE ? TO ?;", pg.Ident(dbName), pg.Ident(userName))
}

// Grants the user full access to the given schema.
func GrantSchemaAccess(dbi pg.DBI, schemaName, userName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem granting privileges on schema "%s" to user "%s"`, schemaName, userName),
		"GRANT ALL PRIVILEGES ON SCHEMA ? TO ?;", pg.Ident(schemaName), pg.Ident(userName))
}

// Revokes the user's access to the given schema.
func RevokeSchemaAccess(dbi pg.DBI, schemaName, userName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem revoking privileges on schema "%s" from user "%s"`, schemaName, userName),
		"REVOKE ALL PRIVILEGES ON SCHEMA ? FROM ?;", pg.Ident(schemaName), pg.Ident(userName))
}

// Sets (or changes) the user's password.
func SetUserPassword(dbi pg.DBI, userName, password string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem setting password for user "%s"`, userName),
		"ALTER USER ? WITH PASSWORD ?;", pg.Ident(userName), password)
}

// Removes a table if it exists.
func DropTable(dbi pg.DBI, tableName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem dropping table "%s"`, tableName),
		fmt.Sprintf("DROP TABLE IF EXISTS %s;", tableName))
}

// Removes a sequence if it exists.
func DropSequence(dbi pg.DBI, sequenceName string) error {
	return execStmt(dbi,
		fmt.Sprintf(`problem dropping sequence "%s"`, sequenceName),
		fmt.Sprintf("DROP SEQUENCE IF EXISTS %s;", sequenceName))
}
