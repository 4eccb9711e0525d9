package dbops

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Alias to pg.DB.
type PgDB = pg.DB

// Alias to pg.Options.
type PgOptions = pg.Options

// An enum controlling which SQL queries are logged.
type LoggingQueryPreset string

const (
	// Log all queries including the schema migrations.
	LoggingQueryPresetAll LoggingQueryPreset = "all"
	// Log only the run-time queries, skip the schema migrations.
	LoggingQueryPresetRuntime LoggingQueryPreset = "run"
	// Do not log any queries.
	LoggingQueryPresetNone LoggingQueryPreset = "none"
)

// Converts a raw string into the logging query preset. Unrecognized
// values disable the query logging.
func newLoggingQueryPreset(raw string) LoggingQueryPreset {
	switch raw {
	case string(LoggingQueryPresetAll):
		return LoggingQueryPresetAll
	case string(LoggingQueryPresetRuntime):
		return LoggingQueryPresetRuntime
	default:
		return LoggingQueryPresetNone
	}
}

// Checks if a given preset enables any query logging.
func (p LoggingQueryPreset) IsEnabled() bool {
	return p == LoggingQueryPresetAll || p == LoggingQueryPresetRuntime
}

// The settings needed to connect to the PostgreSQL database holding the
// telephony realtime configuration.
type DatabaseSettings struct {
	DBName       string
	User         string
	Password     string
	Host         string
	Port         int
	SSLMode      string
	SSLCert      string
	SSLKey       string
	SSLRootCert  string
	TraceSQL     LoggingQueryPreset
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Returns true if the host points to a UNIX socket directory rather
// than a TCP endpoint.
func (s *DatabaseSettings) isSocket() bool {
	return strings.HasPrefix(s.Host, "/")
}

// Converts the generic database settings to the go-pg specific options.
// It fails if the TLS configuration is invalid.
func (s *DatabaseSettings) convertToPgOptions() (*PgOptions, error) {
	pgopts := &PgOptions{
		Database:     s.DBName,
		User:         s.User,
		Password:     s.Password,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}

	if s.isSocket() {
		// The PostgreSQL socket name is created in the socket directory.
		pgopts.Network = "unix"
		pgopts.Addr = fmt.Sprintf("%s/.s.PGSQL.%d", s.Host, s.Port)
	} else {
		pgopts.Network = "tcp"
		pgopts.Addr = fmt.Sprintf("%s:%d", s.Host, s.Port)

		tlsConfig, err := newTLSConfig(s.SSLMode, s.Host, s.SSLCert, s.SSLKey, s.SSLRootCert)
		if err != nil {
			return nil, err
		}
		pgopts.TLSConfig = tlsConfig
	}

	return pgopts, nil
}

// Prompts for the database password if it hasn't been provided by a
// flag or an environment variable. The prompt is only presented when
// the standard input is a terminal, so non-interactive invocations
// (e.g. peer or trust authentication) are not blocked.
func (s *DatabaseSettings) MaybePromptPassword() error {
	if s.Password != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}

	fmt.Printf("database password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return errors.Wrap(err, "problem reading database password from terminal")
	}
	s.Password = string(password)
	return nil
}
