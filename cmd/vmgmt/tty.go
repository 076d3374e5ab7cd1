package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"
)

var ttyState *term.State

// saveTTYState remembers the terminal mode so an interrupted prompt does
// not leave the shell in raw mode.
func saveTTYState() {
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		ttyState, _ = term.GetState(fd)
	}
}

func restoreTTYOnExit() {
	if ttyState != nil {
		_ = term.Restore(int(os.Stdin.Fd()), ttyState)
	}
}

// interruptContext is cancelled on the first Ctrl+C. The second exits.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-mainSigCh
		fmt.Fprintln(os.Stderr, "\nCancelling... (Ctrl+C again to quit)")
		cancel()
		<-mainSigCh
		restoreTTYOnExit()
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}()
	return ctx, cancel
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// readPassword reads a password without echoing. Returns empty string if blank.
func readPassword(field string) string {
	fmt.Fprintf(os.Stderr, "  %s: ", field)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(pw)
}
