// Package debug mirrors the teacher's cmn/debug: cheap, compiled-in-by-default
// assertions used on hot paths (xact/xs/tcb.go: debug.Assert(bckEq),
// debug.AssertNoErr(err)). Set Enabled=false in production builds that cannot
// tolerate the (small) assertion overhead.
package debug

import "fmt"

// Enabled gates assertion checks. On by default; nothing in this module turns it
// off.
var Enabled = true

// Assert panics with msgAndArgs if cond is false and assertions are enabled.
func Assert(cond bool, msgAndArgs ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf("assertion failed: %s", fmt.Sprint(msgAndArgs...)))
}

// AssertNoErr panics if err is non-nil and assertions are enabled.
func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
}

// AssertMsg is Assert with a plain string message, matching call sites that pass
// a single formatted string instead of varargs.
func AssertMsg(cond bool, msg string) {
	if !Enabled || cond {
		return
	}
	panic("assertion failed: " + msg)
}
