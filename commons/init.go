// Package commons holds process-wide helpers shared by the broker packages
// and the example binaries.
package commons

import (
	"log"
	"os"

	"go.uber.org/zap"
)

var (
	SystemDebug bool
	Log         *zap.Logger
)

func init() {
	var err error

	SystemDebug = os.Getenv("LINEMQ_DEBUG") == "1"

	if !SystemDebug {
		Log, err = zap.NewProduction()
	} else {
		Log, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatal(err)
	}
}

// SetLogger replaces the process-wide logger. It is meant to be called once
// during start-up, before any server is running.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}

	Log = l
}
