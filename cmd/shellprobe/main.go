package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/shellprobe/internal/common"
)

// Process exit codes
const (
	exitFailed = 1
	exitSetup  = 2
)

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	defer common.RecoverWithCrashFile()

	err := newRootCommand().Execute()
	if err == nil {
		return
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.err)
		}
		os.Exit(exitErr.code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitSetup)
}
