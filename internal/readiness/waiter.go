// Package readiness waits for a freshly created machine to become
// usable. The wait has two distinct failure domains: the provider
// reporting the machine running, and the machine's shell actually
// answering. A machine can report running well before sshd accepts
// connections, and the remediation for the two differs.
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/provider"
)

// StatusPoller fetches the provider's view of a machine.
type StatusPoller interface {
	GetMachine(ctx context.Context, id string) (provider.Machine, error)
}

// ShellProber runs a trivial command over the remote shell to confirm
// it answers. Each call is one independent connection attempt.
type ShellProber interface {
	Probe(ctx context.Context) error
}

// Waiter polls with a bounded attempt budget per phase.
type Waiter struct {
	poller        StatusPoller
	MaxPolls      int
	PollInterval  time.Duration
	MaxProbes     int
	ProbeInterval time.Duration
	sleep         func(time.Duration)
}

// New returns a waiter with conventional budgets: a machine that takes
// longer than ~2 minutes to start or ~1 minute to accept a shell is
// treated as stuck.
func New(poller StatusPoller) *Waiter {
	return &Waiter{
		poller:        poller,
		MaxPolls:      24,
		PollInterval:  5 * time.Second,
		MaxProbes:     12,
		ProbeInterval: 5 * time.Second,
		sleep:         time.Sleep,
	}
}

// WaitReady drives handle from Creating to Ready: first the provider
// phase, then the shell phase. The handle transitions to Started as
// soon as the provider reports running and to Ready once the shell
// answers.
func (w *Waiter) WaitReady(ctx context.Context, handle *models.ResourceHandle, prober ShellProber) error {
	if err := w.waitStarted(ctx, handle); err != nil {
		return err
	}
	if err := handle.Transition(models.StateStarted); err != nil {
		return err
	}
	if err := w.waitShell(ctx, handle, prober); err != nil {
		return err
	}
	return handle.Transition(models.StateReady)
}

// waitStarted polls the status endpoint exactly up to MaxPolls times.
func (w *Waiter) waitStarted(ctx context.Context, handle *models.ResourceHandle) error {
	for poll := 1; poll <= w.MaxPolls; poll++ {
		if poll > 1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.sleep(w.PollInterval)
		}
		machine, err := w.poller.GetMachine(ctx, handle.ID)
		if err != nil {
			// Transient API trouble is already retried inside the
			// client; anything surfacing here is fatal.
			return err
		}
		switch machine.Status {
		case provider.StatusRunning:
			// The address can be assigned after creation; refresh it.
			if machine.PublicIP != "" {
				handle.Host = machine.PublicIP
			}
			return nil
		case provider.StatusErrored:
			return fmt.Errorf("machine %s entered status %q while waiting for it to start", handle.ID, machine.Status)
		}
	}
	return &models.ReadinessTimeoutError{
		Phase:     models.PhaseProviderStart,
		MachineID: handle.ID,
		Attempts:  w.MaxPolls,
	}
}

// waitShell retries the shell probe up to MaxProbes times.
func (w *Waiter) waitShell(ctx context.Context, handle *models.ResourceHandle, prober ShellProber) error {
	for attempt := 1; attempt <= w.MaxProbes; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.sleep(w.ProbeInterval)
		}
		if err := prober.Probe(ctx); err == nil {
			return nil
		}
	}
	return &models.ReadinessTimeoutError{
		Phase:     models.PhaseShellProbe,
		MachineID: handle.ID,
		Attempts:  w.MaxProbes,
	}
}
