// Package nlog is a minimal leveled logger, mirroring the teacher's cmn/nlog as used
// across xact/xs (nlog.Infoln(r.Name()), nlog.Errorln(err)). It writes to stderr by
// default; SetOutput redirects it.
package nlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stderr
)

// SetOutput redirects all subsequent log lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func line(level, msg string) string {
	return fmt.Sprintf("%s %-5s %s\n", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), level, msg)
}

func write(level string, msg string) {
	mu.Lock()
	defer mu.Unlock()
	_, _ = out.Write([]byte(line(level, msg)))
}

func Infoln(args ...any)          { write("INFO", fmt.Sprintln(args...)) }
func Infof(f string, a ...any)    { write("INFO", fmt.Sprintf(f, a...)) }
func Warningln(args ...any)       { write("WARN", fmt.Sprintln(args...)) }
func Warningf(f string, a ...any) { write("WARN", fmt.Sprintf(f, a...)) }
func Errorln(args ...any)         { write("ERROR", fmt.Sprintln(args...)) }
func Errorf(f string, a ...any)   { write("ERROR", fmt.Sprintf(f, a...)) }

// Fatalln logs and terminates the process; used when a qep's stop or fail exceeds
// its termination deadline (DeadlineExceeded) and when the engine's config fails to
// load.
func Fatalln(args ...any) {
	write("FATAL", fmt.Sprintln(args...))
	os.Exit(1)
}
