// Package sysutil holds process-level helpers: the global log level, env
// value parsing and host resource sampling.
package sysutil

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from LOG_LEVEL and returns the
// level applied. "warning" is accepted for warn; blank or unknown values mean
// info. Levels below debug are not exposed.
func SetLogLevel(lvl string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || level < zerolog.DebugLevel || level > zerolog.PanicLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// IsTruthy reports whether an env value means "on": anything strconv.ParseBool
// accepts as true, plus yes/y/on.
func IsTruthy(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "yes", "y", "on":
		return true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// FirstNonEmpty returns the first value that is not blank, trimmed.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
