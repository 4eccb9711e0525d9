// Database connection parameters can arrive as CLI flags, environment
// variables or a connection URL, and all three must agree on names and
// defaults. The flag containers below declare every parameter once, in
// struct tags, and the rest of the file turns those tags into flag specs
// that drive both the parsing and the CLI registration.
package dbops

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
)

// A single connection parameter assembled from the struct tags of a flag
// container. The spec keeps a handle to the field it was collected from,
// so assigning a value stores it back in the container.
type FlagSpec struct {
	Long    string // flag name
	Short   string // one-letter alias
	Usage   string
	EnvVar  string
	Default string
	Kind    reflect.Kind

	isDuration bool
	target     reflect.Value // invalid when collected from a nil container
}

// Parses raw and stores it in the container field. Values that don't
// parse, and field types the flag machinery doesn't know, are skipped so
// a malformed variable never clobbers a default.
func (s *FlagSpec) assign(raw string) {
	if !s.target.IsValid() {
		return
	}
	switch {
	case s.isDuration:
		if d, err := time.ParseDuration(raw); err == nil {
			s.target.SetInt(int64(d))
		}
	case s.Kind == reflect.String:
		s.target.SetString(raw)
	case s.Kind == reflect.Int:
		if n, err := strconv.ParseInt(raw, 10, 0); err == nil {
			s.target.SetInt(n)
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// Collects the flag specs of a container, descending into embedded and
// nested structs. The container may be a nil pointer; the resulting specs
// then describe the flags but cannot be assigned to, which is all the CLI
// registration needs.
func collectFlagSpecs(container any) []*FlagSpec {
	return collectStructSpecs(
		reflect.TypeOf(container).Elem(),
		reflect.ValueOf(container).Elem(),
		nil,
	)
}

func collectStructSpecs(t reflect.Type, v reflect.Value, specs []*FlagSpec) []*FlagSpec {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		var value reflect.Value
		if v.IsValid() {
			value = v.Field(i)
		}

		if field.Type.Kind() == reflect.Struct {
			specs = collectStructSpecs(field.Type, value, specs)
			continue
		}

		specs = append(specs, &FlagSpec{
			Long:       field.Tag.Get("long"),
			Short:      field.Tag.Get("short"),
			Usage:      field.Tag.Get("description"),
			EnvVar:     field.Tag.Get("env"),
			Default:    field.Tag.Get("default"),
			Kind:       field.Type.Kind(),
			isDuration: field.Type.AssignableTo(durationType),
			target:     value,
		})
	}
	return specs
}

// Assigns the values of the set environment variables to the specs.
func applyEnvironment(specs []*FlagSpec) {
	for _, spec := range specs {
		if spec.EnvVar == "" {
			continue
		}
		if raw, ok := os.LookupEnv(spec.EnvVar); ok {
			spec.assign(raw)
		}
	}
}

// The source of the parsed command line values. Satisfied by
// *cli.Context of the urfave/cli library.
type CLILookup interface {
	IsSet(key string) bool
	String(key string) string
}

// Assigns the command line values to the specs. A flag counts as provided
// when its value is non-empty or the lookup reports it as set, so an
// explicit empty string still overrides the default.
func applyCLI(specs []*FlagSpec, lookup CLILookup) {
	for _, spec := range specs {
		if spec.Long == "" {
			continue
		}
		if raw := lookup.String(spec.Long); raw != "" || lookup.IsSet(spec.Long) {
			spec.assign(raw)
		}
	}
}

// The connection parameters of the realtime configuration database.
type DatabaseCLIFlags struct {
	URL          string        `long:"db-url" description:"Connection URL of the realtime configuration database; mutually exclusive with the individual connection flags" env:"SIPDB_DATABASE_URL"`
	DBName       string        `short:"d" long:"db-name" description:"Name of the realtime configuration database" env:"SIPDB_DATABASE_NAME" default:"sipdb"`
	User         string        `short:"u" long:"db-user" description:"User name for the database connection" env:"SIPDB_DATABASE_USER_NAME" default:"sipdb"`
	Password     string        `long:"db-password" description:"Password for the database connection; prefer the environment variable, or leave it empty to type it in a hidden prompt" env:"SIPDB_DATABASE_PASSWORD"`
	Host         string        `long:"db-host" description:"Host name, IP address or socket directory of the database server" env:"SIPDB_DATABASE_HOST" default:""`
	Port         int           `short:"p" long:"db-port" description:"Port the database server listens on" env:"SIPDB_DATABASE_PORT" default:"5432"`
	SSLMode      string        `long:"db-sslmode" description:"SSL mode of the database connection (disable, require, verify-ca or verify-full)" env:"SIPDB_DATABASE_SSLMODE" default:"disable"`
	SSLCert      string        `long:"db-sslcert" description:"Path of the client SSL certificate presented to the database server" env:"SIPDB_DATABASE_SSLCERT"`
	SSLKey       string        `long:"db-sslkey" description:"Path of the client SSL key matching the certificate" env:"SIPDB_DATABASE_SSLKEY"`
	SSLRootCert  string        `long:"db-sslrootcert" description:"Path of the root CA certificate used to verify the database server's certificate" env:"SIPDB_DATABASE_SSLROOTCERT"`
	TraceSQL     string        `long:"db-trace-queries" description:"Trace executed SQL queries: run (run-time only), all (including migrations) or none" env:"SIPDB_DATABASE_TRACE" default:"none"`
	ReadTimeout  time.Duration `long:"db-read-timeout" description:"Socket read timeout with a unit (e.g. 42s); zero disables the timeout" env:"SIPDB_DATABASE_READ_TIMEOUT" default:"0s"`
	WriteTimeout time.Duration `long:"db-write-timeout" description:"Socket write timeout with a unit (e.g. 42s); zero disables the timeout" env:"SIPDB_DATABASE_WRITE_TIMEOUT" default:"0s"`
}

// Returns the flag specs of the container. Safe for a nil receiver.
func (s *DatabaseCLIFlags) FlagSpecs() []*FlagSpec {
	return collectFlagSpecs(s)
}

// Loads the values of the set environment variables.
func (s *DatabaseCLIFlags) ReadFromEnvironment() {
	applyEnvironment(collectFlagSpecs(s))
}

// Loads the values provided on the command line.
func (s *DatabaseCLIFlags) ReadFromCLI(lookup CLILookup) {
	applyCLI(collectFlagSpecs(s), lookup)
}

// Builds the database settings from the flags. The settings come either
// from the individual parameters or from the connection URL; mixing both
// is rejected because it is ambiguous which source should win.
func (s *DatabaseCLIFlags) ConvertToDatabaseSettings() (*DatabaseSettings, error) {
	settings := &DatabaseSettings{
		DBName:       s.DBName,
		User:         s.User,
		Password:     s.Password,
		Host:         s.Host,
		Port:         s.Port,
		SSLMode:      s.SSLMode,
		SSLCert:      s.SSLCert,
		SSLKey:       s.SSLKey,
		SSLRootCert:  s.SSLRootCert,
		TraceSQL:     newLoggingQueryPreset(s.TraceSQL),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}

	if s.URL == "" {
		return settings, nil
	}

	if conflict := s.urlConflict(); conflict != "" {
		return nil, errors.Errorf("URL is mutually exclusive with the %s", conflict)
	}

	opts, err := pg.ParseURL(s.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid database URL: %s", s.URL)
	}

	// pg.ParseURL normalizes the address to host:port.
	host, rawPort, ok := strings.Cut(opts.Addr, ":")
	if !ok {
		return nil, errors.Errorf("unknown address format: '%s'", opts.Addr)
	}
	port, err := strconv.ParseInt(rawPort, 10, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid port: '%s'", rawPort)
	}

	settings.DBName = opts.Database
	settings.User = opts.User
	settings.Password = opts.Password
	settings.Host = host
	settings.Port = int(port)

	// The sslmode cannot come from the URL. go-pg understands the
	// parameter but collapses it into an incomplete TLS config, losing
	// the mode itself, so it must be given with the dedicated flags.
	return settings, nil
}

// Names the first standard access parameter provided alongside the URL,
// or returns an empty string when there is no conflict.
func (s *DatabaseCLIFlags) urlConflict() string {
	switch {
	case s.DBName != "":
		return "database name"
	case s.User != "":
		return "user"
	case s.Password != "":
		return "password"
	case s.Host != "":
		return "host"
	case s.Port != 0:
		return "port"
	}
	return ""
}

// The connection parameters extended with the maintenance credentials.
// The maintenance access is needed for the operations reaching beyond a
// single database: creating and dropping databases and roles, and
// granting privileges.
type DatabaseCLIFlagsWithMaintenance struct {
	DatabaseCLIFlags
	MaintenanceDBName   string `short:"m" long:"db-maintenance-name" description:"The existing maintenance database name" env:"SIPDB_DATABASE_MAINTENANCE_NAME" default:"postgres"`
	MaintenanceUser     string `short:"a" long:"db-maintenance-user" description:"The Postgres database administrator user name" env:"SIPDB_DATABASE_MAINTENANCE_USER_NAME" default:"postgres"`
	MaintenancePassword string `long:"db-maintenance-password" description:"The Postgres database administrator password; if not specified, the user will be prompted for the password if necessary" env:"SIPDB_DATABASE_MAINTENANCE_PASSWORD"`
}

// Builds the settings for connecting to the maintenance database with the
// administrator credentials.
func (s *DatabaseCLIFlagsWithMaintenance) ConvertToMaintenanceDatabaseSettings() (*DatabaseSettings, error) {
	settings, err := s.ConvertToDatabaseSettings()
	if err != nil {
		return nil, err
	}

	settings.DBName = s.MaintenanceDBName
	settings.User = s.MaintenanceUser
	settings.Password = s.MaintenancePassword
	return settings, nil
}

// Returns the flag specs of the container. Safe for a nil receiver.
func (s *DatabaseCLIFlagsWithMaintenance) FlagSpecs() []*FlagSpec {
	return collectFlagSpecs(s)
}

// Loads the values of the set environment variables.
func (s *DatabaseCLIFlagsWithMaintenance) ReadFromEnvironment() {
	applyEnvironment(collectFlagSpecs(s))
}

// Loads the values provided on the command line.
func (s *DatabaseCLIFlagsWithMaintenance) ReadFromCLI(lookup CLILookup) {
	applyCLI(collectFlagSpecs(s), lookup)
}
