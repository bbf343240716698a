package main

import (
	_ "net/http/pprof" //nolint:gosec // Import for pprof, only enabled via the profiler address setting
	"os"

	"github.com/ordishs/gocore"

	"github.com/dashbridge/creditbridge/daemon"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "creditbridge"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func main() {
	gocore.SetInfo(progname, version, commit)

	// Initialize the gocore logger and the Unix domain socket that allows
	// settings to be inspected at runtime.
	gocore.Log(progname)

	gocore.AddAppPayloadFn("CONFIG", func() interface{} {
		return gocore.Config().GetAll()
	})

	tSettings := settings.NewSettings()

	logger := ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel))

	stats := gocore.Config().Stats()
	logger.Infof("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	daemon.New(daemon.WithLoggerFactory(func(serviceName string) ulogger.Logger {
		return ulogger.New(serviceName, ulogger.WithLevel(tSettings.LogLevel))
	})).Start(logger, os.Args[1:], tSettings)
}
