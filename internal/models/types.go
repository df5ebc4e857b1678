// Package models defines the core types shared across spinup:
// the resource specification, the provisioned-resource handle and its
// state machine, retry policy, and command execution results.
package models

import (
	"fmt"
	"time"
)

// ResourceSpec describes the machine the user wants. It is immutable
// once handed to the provisioner.
type ResourceSpec struct {
	Name     string
	Region   string
	Size     string
	Image    string
	VolumeGB int // 0 means no attached volume
}

// State is a position in the resource lifecycle.
type State string

const (
	StateRequested State = "requested"
	StateCreating  State = "creating"
	StateStarted   State = "started"
	StateReady     State = "ready"
	StateDestroyed State = "destroyed"
	StateFailed    State = "failed"
)

// validNext maps each state to the states it may advance to. Failed is
// reachable from everywhere; Destroyed re-entry is allowed so that
// destroying twice stays a no-op.
var validNext = map[State][]State{
	StateRequested: {StateCreating, StateFailed},
	StateCreating:  {StateStarted, StateDestroyed, StateFailed},
	StateStarted:   {StateReady, StateDestroyed, StateFailed},
	StateReady:     {StateDestroyed, StateFailed},
	StateDestroyed: {StateDestroyed},
	StateFailed:    {StateDestroyed, StateFailed},
}

// ResourceHandle holds the identifiers the provider returned for one
// provisioned machine, plus its lifecycle state. The lifecycle manager
// owns the handle for the duration of one invocation.
type ResourceHandle struct {
	ID       string
	VolumeID string
	Name     string
	Region   string
	Size     string

	Host string
	Port int
	User string

	state State
}

// NewHandle returns a handle in the Requested state, before any
// provider call has been made.
func NewHandle(spec ResourceSpec) *ResourceHandle {
	return &ResourceHandle{
		Name:   spec.Name,
		Region: spec.Region,
		Size:   spec.Size,
		state:  StateRequested,
	}
}

// State reports the handle's current lifecycle state.
func (h *ResourceHandle) State() State {
	return h.state
}

// Transition advances the handle to next, or errors if the lifecycle
// does not permit that move.
func (h *ResourceHandle) Transition(next State) error {
	for _, allowed := range validNext[h.state] {
		if next == allowed {
			h.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s for resource %q", h.state, next, h.Name)
}

// SSHTarget returns the host:port address for the remote shell.
func (h *ResourceHandle) SSHTarget() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// RetryPolicy bounds retries of a single provider API call. It is
// applied per call, not per invocation, so one slow call cannot starve
// the rest of the provisioning budget.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Cap         time.Duration
}

// DefaultRetryPolicy returns the policy used for all provider calls
// unless overridden.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		Cap:         8 * time.Second,
	}
}

// Next returns the delay to wait after a delay of d, growing
// geometrically and clamped at the cap.
func (p RetryPolicy) Next(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * p.Multiplier)
	if next > p.Cap {
		return p.Cap
	}
	return next
}

// ExecutionResult is the outcome of one remote command.
type ExecutionResult struct {
	ExitCode int
	Output   string // combined stdout+stderr, bounded
	Killed   bool   // true when the local wall-clock ceiling fired
}
