// Package remote runs commands on a provisioned machine over a remote
// shell channel. The non-interactive path wraps every command with a
// keepalive heartbeat so idle-intolerant transports do not tear the
// session down mid-command, and with a local wall-clock ceiling.
package remote

import (
	"fmt"
	"io"
)

// ExitError reports a remote command that ran to completion with a
// non-zero status. Transport failures are returned as other error
// types.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.Status)
}

// Session is one remote command execution.
type Session interface {
	// Start launches command with the given streams. stdin must stay
	// open until the command exits; some transports tear down the
	// whole channel when input closes while output is pending.
	Start(command string, stdin io.Reader, stdout, stderr io.Writer) error
	// Wait blocks until the command exits. A non-zero exit is
	// reported as *ExitError.
	Wait() error
	// Kill force-terminates the remote command.
	Kill() error
	Close() error
}

// Transport is a connection to one machine's remote shell. It must
// tolerate long-lived sessions provided Keepalive is called
// periodically.
type Transport interface {
	NewSession() (Session, error)
	// Keepalive emits a harmless bit of traffic on the otherwise idle
	// connection.
	Keepalive() error
	// Interactive runs command (or a login shell when empty) with the
	// local terminal attached, returning the remote exit code.
	Interactive(command string) (int, error)
	Close() error
}
