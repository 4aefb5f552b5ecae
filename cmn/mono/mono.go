// Package mono provides monotonic-clock helpers, mirroring the teacher's cmn/mono
// (used for quiescence timing in xact/xs/tcb.go: mono.Since(r.rxlast.Load())).
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since the package was initialized; it is
// monotonic and cheap, suitable for the rxlast/creationTimestamp bookkeeping that
// buffers and quiescence callbacks need but that must never regress on wall-clock
// adjustment.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the nanoseconds elapsed since a NanoTime() reading.
func Since(t int64) int64 { return NanoTime() - t }
