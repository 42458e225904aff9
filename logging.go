package costar

import (
	"log"
	"os"
)

// Per-subsystem loggers with short tags, mirroring the firmware's
// tagged log lines.
var (
	schedLog  = newLogger("sched")
	layoutLog = newLogger("layout")
	geoLog    = newLogger("geo")
	renderLog = newLogger("render")
)

func newLogger(tag string) *log.Logger {
	return log.New(os.Stderr, tag+": ", log.Ltime|log.Lmsgprefix)
}
