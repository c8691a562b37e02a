// Package rtlog provides leveled, line-oriented logging for the runtime's
// components, in the same prefixed stdlib-log style as the teacher's
// security and package-manager logging (e.g. "[SECURITY] ..." prefixes over
// log.Printf) rather than pulling in a structured logging façade.
package rtlog

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput redirects every subsequent log line; primarily for tests that
// want to assert on emitted output.
func SetOutput(l *log.Logger) { std = l }

func Debugf(format string, args ...any) { std.Printf("[DEBUG] "+format, args...) }
func Warnf(format string, args ...any)  { std.Printf("[WARN] "+format, args...) }
func Errorf(format string, args ...any) { std.Printf("[ERROR] "+format, args...) }
func Infof(format string, args ...any)  { std.Printf("[INFO] "+format, args...) }
