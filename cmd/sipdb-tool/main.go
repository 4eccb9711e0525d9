package main

import (
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/voiceops/sipdb"
	dbops "github.com/voiceops/sipdb/database"
	sipdbutil "github.com/voiceops/sipdb/util"
)

// Random hash size in the generated password.
const passwordGenRandomLength = 24

// Connects to the database with the parameters given on the command line,
// prompting for the password when none was provided. The caller closes
// the returned instance.
func getDBConn(c *cli.Context) (*dbops.PgDB, error) {
	flags := &dbops.DatabaseCLIFlags{}
	flags.ReadFromCLI(c)

	settings, err := flags.ConvertToDatabaseSettings()
	if err != nil {
		return nil, err
	}
	if err = settings.MaybePromptPassword(); err != nil {
		return nil, err
	}

	return dbops.NewPgDBConn(settings)
}

// The db-create command: provisions the realtime configuration database
// and a user with access to it. The password is generated unless given,
// and a generated password is included in the final log message because
// nobody has seen it yet.
func runDBCreate(c *cli.Context) error {
	flags := &dbops.DatabaseCLIFlagsWithMaintenance{}
	flags.ReadFromCLI(c)

	generated := false
	if flags.Password == "" {
		password, err := sipdbutil.Base64Random(passwordGenRandomLength)
		if err != nil {
			return errors.WithMessage(err, "failed to generate random database password")
		}
		flags.Password = password
		generated = true
	}

	admin, err := flags.ConvertToMaintenanceDatabaseSettings()
	if err != nil {
		return err
	}

	err = dbops.CreateDatabase(*admin, flags.DBName, flags.User, flags.Password, c.Bool("force"))
	if err != nil {
		return err
	}

	fields := log.Fields{
		"database_name": flags.DBName,
		"user":          flags.User,
	}
	if generated {
		fields["password"] = flags.Password
	}
	log.WithFields(fields).Info("Created database and user for the realtime configuration with the following credentials")
	return nil
}

// The db-password-gen command: prints a random password suitable for the
// realtime configuration database user.
func runDBPasswordGen() error {
	password, err := sipdbutil.Base64Random(passwordGenRandomLength)
	if err != nil {
		return errors.WithMessage(err, "failed to generate random database password")
	}
	log.WithField("password", password).Info("Generated new database password")
	return nil
}

// Runs a schema migration action against the database. The target version
// is empty for the commands that don't take one.
func runDBMigrate(c *cli.Context, action, target string) error {
	args := []string{action}
	switch {
	case action == "set_version":
		if target == "" {
			return errors.New("the --version/-t flag is required for db-set-version")
		}
		args = append(args, target)
		log.Infof("Requested setting version to %s", target)
	case target != "":
		args = append(args, target)
		log.Infof("Requested migration %s to version %s", action, target)
	}

	db, err := getDBConn(c)
	if err != nil {
		return err
	}

	oldVersion, newVersion, err := dbops.Migrate(db, args...)
	if err == nil && newVersion == 0 {
		// "init" doesn't report the schema version; fetch it explicitly.
		newVersion, err = dbops.CurrentVersion(db)
		oldVersion = newVersion
	}
	db.Close()
	if err != nil {
		return err
	}

	reportSchemaVersion(oldVersion, newVersion)
	return nil
}

// Logs the migration outcome with the relation to the latest version
// shipped with this build.
func reportSchemaVersion(oldVersion, newVersion int64) {
	switch latest := dbops.AvailableVersion(); {
	case oldVersion != newVersion:
		log.Infof("Migrated database from version %d to %d", oldVersion, newVersion)
	case newVersion == 0:
		log.Info("Database schema is empty (version 0)")
	case newVersion == latest:
		log.Infof("Database version is %d (up-to-date)", newVersion)
	default:
		log.Infof("Database version is %d (new version %d available)", newVersion, latest)
	}
}

// Converts the flag specs of a flag container into urfave/cli flags.
func buildCLIFlags(specs []*dbops.FlagSpec) ([]cli.Flag, error) {
	var flags []cli.Flag
	for _, spec := range specs {
		var aliases, envVars []string
		if spec.Short != "" {
			aliases = []string{spec.Short}
		}
		if spec.EnvVar != "" {
			envVars = []string{spec.EnvVar}
		}

		if spec.Kind == reflect.Int {
			defaultValue, err := strconv.ParseInt(spec.Default, 10, 0)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid default value ('%s') for parameter ('%s')", spec.Default, spec.Long)
			}
			flags = append(flags, &cli.Int64Flag{
				Name:    spec.Long,
				Aliases: aliases,
				Usage:   spec.Usage,
				EnvVars: envVars,
				Value:   defaultValue,
			})
			continue
		}

		flags = append(flags, &cli.StringFlag{
			Name:    spec.Long,
			Aliases: aliases,
			Usage:   spec.Usage,
			EnvVars: envVars,
			Value:   spec.Default,
		})
	}
	return flags, nil
}

// A schema migration command of the tool. Versioned commands take the
// optional -t flag selecting the target schema version.
type migrationCommand struct {
	name      string
	usage     string
	action    string
	versioned bool
}

var migrationCommands = []migrationCommand{
	{"db-init", "Create schema versioning table in the database", "init", false},
	{"db-up", "Run all available migrations or use -t to specify version", "up", true},
	{"db-down", "Revert last migration or use -t to specify version to downgrade to", "down", true},
	{"db-reset", "Revert all migrations", "reset", false},
	{"db-version", "Print current migration version", "version", false},
	{"db-set-version", "Set database version without running migrations", "set_version", true},
}

// Builds the "Database Migration" command group.
func newMigrationCommands(connFlags []cli.Flag) []*cli.Command {
	versionedFlags := append([]cli.Flag{}, connFlags...)
	versionedFlags = append(versionedFlags, &cli.StringFlag{
		Name:    "version",
		Usage:   "Target database schema version (optional)",
		Aliases: []string{"t"},
		EnvVars: []string{"SIPDB_TOOL_DB_VERSION"},
	})

	var commands []*cli.Command
	for _, mc := range migrationCommands {
		mc := mc
		flags := connFlags
		usageText := fmt.Sprintf("sipdb-tool %s [options for db connection]", mc.name)
		if mc.versioned {
			flags = versionedFlags
			usageText += " [-t version]"
		}
		commands = append(commands, &cli.Command{
			Name:      mc.name,
			Usage:     mc.usage,
			UsageText: usageText,
			Flags:     flags,
			Category:  "Database Migration",
			Action: func(c *cli.Context) error {
				target := ""
				if mc.versioned {
					target = c.String("version")
				}
				return runDBMigrate(c, mc.action, target)
			},
		})
	}
	return commands
}

// Builds the "Database Creation" command group.
func newCreationCommands(createFlags []cli.Flag) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "db-create",
			Usage:     "Create new database for the realtime configuration",
			UsageText: "sipdb-tool db-create [options for db creation] -f",
			Flags:     createFlags,
			Category:  "Database Creation",
			Action:    runDBCreate,
		},
		{
			Name:      "db-password-gen",
			Usage:     "Generate random database password",
			UsageText: "sipdb-tool db-password-gen",
			Category:  "Database Creation",
			Action: func(*cli.Context) error {
				return runDBPasswordGen()
			},
		},
	}
}

// Assembles the urfave/cli application with all commands and flags.
func setupApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Println(c.App.Version)
	}
	cli.HelpFlag = &cli.BoolFlag{
		Name:    "help",
		Aliases: []string{"h"},
		Usage:   "Show help",
	}
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version",
	}

	connFlags, err := buildCLIFlags((*dbops.DatabaseCLIFlags)(nil).FlagSpecs())
	if err != nil {
		log.WithError(err).Fatal("Invalid database CLI flag definitions")
	}

	createFlags, err := buildCLIFlags((*dbops.DatabaseCLIFlagsWithMaintenance)(nil).FlagSpecs())
	if err != nil {
		log.WithError(err).Fatal("Invalid create database CLI flag definitions")
	}
	createFlags = append(createFlags, &cli.BoolFlag{
		Name:    "force",
		Usage:   "Recreate the database and the user if they exist",
		Aliases: []string{"f"},
	})

	commands := newCreationCommands(createFlags)
	commands = append(commands, newMigrationCommands(connFlags)...)

	return &cli.App{
		Name:  "sipdb Tool",
		Usage: "A tool for managing the telephony realtime configuration database.",
		Description: `The tool operates in two areas:

   - Database Creation - it facilitates creating a new database for the
     telephony realtime configuration, and a user that can access this
     database with a generated password;

   - Database Migration - it allows for performing database schema
     migrations, overwriting the db schema version and getting its
     current value.`,
		Version:  sipdb.Version,
		HelpName: "sipdb-tool",
		Commands: commands,
	}
}

func main() {
	sipdbutil.SetupLogging()

	if err := setupApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
