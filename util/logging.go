package sipdbutil

import (
	"fmt"
	"os"
	"path"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Log levels selectable with the SIPDB_LOG_LEVEL environment variable.
var logLevels = map[string]log.Level{
	"DEBUG": log.DebugLevel,
	"WARN":  log.WarnLevel,
	"ERROR": log.ErrorLevel,
}

// Configures the logrus logger used by all sipdb binaries.
func SetupLogging() {
	level, ok := logLevels[os.Getenv("SIPDB_LOG_LEVEL")]
	if !ok {
		level = log.InfoLevel
	}

	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		CallerPrettyfier: func(frame *runtime.Frame) (string, string) {
			// Trim the caller to the bare file name and line.
			_, file := path.Split(frame.File)
			return "", fmt.Sprintf("%20v:%-5d", file, frame.Line)
		},
	})
}
