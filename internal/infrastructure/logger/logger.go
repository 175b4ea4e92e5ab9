package logger

import (
	"io"
	"log"
	"os"
	"strings"
)

var (
	Info  *log.Logger
	Error *log.Logger
	Debug *log.Logger
	Warn  *log.Logger
)

const logFlags = log.Ldate | log.Ltime | log.LUTC | log.Lshortfile

func init() {
	Info = log.New(os.Stdout, "INFO: ", logFlags)
	Error = log.New(os.Stdout, "ERROR: ", logFlags)
	Debug = log.New(io.Discard, "DEBUG: ", logFlags)
	Warn = log.New(os.Stdout, "WARN: ", logFlags)
}

// Configure routes every logger to w and silences the levels below level.
// Accepted levels are debug, info, warn and error; anything else means info.
func Configure(w io.Writer, level string) {
	rank := map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}
	min, ok := rank[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		min = 1
	}
	pick := func(r int) io.Writer {
		if r < min {
			return io.Discard
		}
		return w
	}
	Debug.SetOutput(pick(0))
	Info.SetOutput(pick(1))
	Warn.SetOutput(pick(2))
	Error.SetOutput(pick(3))
}
