// Command ldapauth authenticates local user accounts against an LDAP
// directory, provisioning and synchronizing them as it goes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes.
const (
	exitOK       = 0
	exitRejected = 1
	exitFatal    = 2
)

// errRejected marks an expected negative answer, such as wrong credentials.
var errRejected = errors.New("rejected")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errRejected):
		return exitRejected
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}
}
