// vmgmt - CLI for inspecting and operating VMs across management systems
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
)

// mainSigCh receives SIGINT. Long operations run under a context that is
// cancelled first; a second Ctrl+C exits immediately.
var mainSigCh = make(chan os.Signal, 1)

func main() {
	saveTTYState()
	signal.Notify(mainSigCh, os.Interrupt)

	root := newRootCmd()
	ctx, cancel := interruptContext()
	err := root.ExecuteContext(ctx)
	cancel()
	if debugCleanup != nil {
		debugCleanup()
	}
	if err == nil {
		return
	}

	const (
		red    = "\033[31m"
		yellow = "\033[33m"
		cyan   = "\033[36m"
		reset  = "\033[0m"
	)
	var ue *userError
	if errors.As(describeError(err), &ue) {
		fmt.Fprintf(os.Stderr, "%sError:%s %s\n", red, reset, ue.Error())
		if hint := ue.Hint(); hint != "" {
			fmt.Fprintf(os.Stderr, "%sHint:%s %s%s%s\n", yellow, reset, cyan, hint, reset)
		}
	} else {
		fmt.Fprintf(os.Stderr, "%sError:%s %v\n", red, reset, err)
	}
	os.Exit(1)
}
