package models

import (
	"fmt"
	"strings"
)

// NoCredentialError means every credential resolution step was tried
// and none produced a valid token.
type NoCredentialError struct {
	Tried []string
}

func (e *NoCredentialError) Error() string {
	return fmt.Sprintf("no valid Nimbus API token found (tried: %s); run 'spinup launch' again and paste a token, or set %s",
		strings.Join(e.Tried, ", "), "SPINUP_TOKEN")
}

// AuthError means a candidate credential was rejected by the provider's
// probe call. The token itself is never included.
type AuthError struct {
	Source string // "environment", "config file", "nimbus CLI", "interactive login"
	Cause  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token from %s was rejected by the provider: %v (re-authenticate at https://console.nimbus.dev/tokens)",
		e.Source, e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ProvisionError means a creation call returned a fatal status. Any
// sibling resource created earlier in the same provisioning run has
// already been rolled back by the time this surfaces.
type ProvisionError struct {
	Step   string // "create volume", "create machine"
	Region string
	Size   string
	Hint   string
	Cause  error
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("provisioning failed at %s (region %s, size %s): %v", e.Step, e.Region, e.Size, e.Cause)
	if e.Hint != "" {
		msg += "\nHint: " + e.Hint
	}
	return msg
}

func (e *ProvisionError) Unwrap() error {
	return e.Cause
}

// ReadinessPhase distinguishes the two failure domains of the
// readiness wait: the provider never reporting the machine running,
// versus a running machine whose shell never answers.
type ReadinessPhase string

const (
	PhaseProviderStart ReadinessPhase = "provider start"
	PhaseShellProbe    ReadinessPhase = "shell probe"
)

// ReadinessTimeoutError means the bounded poll budget ran out before
// the machine became usable.
type ReadinessTimeoutError struct {
	Phase     ReadinessPhase
	MachineID string
	Attempts  int
}

func (e *ReadinessTimeoutError) Error() string {
	switch e.Phase {
	case PhaseShellProbe:
		return fmt.Sprintf("machine %s is running but its shell did not answer after %d attempts; check the provider's firewall rules or try again (https://console.nimbus.dev/machines/%s)",
			e.MachineID, e.Attempts, e.MachineID)
	default:
		return fmt.Sprintf("machine %s never reported running after %d polls; the provider may be stalled -- try another region or check https://status.nimbus.dev",
			e.MachineID, e.Attempts)
	}
}

// RemoteExecError means a remote command exited non-zero or was killed
// by the local wall-clock ceiling. The machine is left running so the
// user can inspect it.
type RemoteExecError struct {
	Command  string
	ExitCode int
	Killed   bool
	Output   string
}

func (e *RemoteExecError) Error() string {
	out := e.Output
	if len(out) > 500 {
		out = "..." + out[len(out)-500:]
	}
	if e.Killed {
		return fmt.Sprintf("remote command %q exceeded its time limit and was killed\nlast output:\n%s", e.Command, out)
	}
	return fmt.Sprintf("remote command %q exited with status %d\nlast output:\n%s", e.Command, e.ExitCode, out)
}
