// Package lifecycle drives one machine through create, wait, setup,
// attach, and destroy. It owns the resource handle for the whole
// invocation and is the only component that triggers rollback.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/provision"
	"github.com/spinup-sh/spinup/internal/readiness"
	"github.com/spinup-sh/spinup/internal/remote"
	"github.com/spinup-sh/spinup/internal/state"
)

// API is everything the manager needs from the provider client.
type API interface {
	provision.API
	readiness.StatusPoller
	DeleteMachine(ctx context.Context, id string) error
}

// DialFunc opens a remote shell transport to a machine.
type DialFunc func(ctx context.Context, h *models.ResourceHandle) (remote.Transport, error)

// LaunchOptions tune the post-ready phase of a launch.
type LaunchOptions struct {
	Env           map[string]string
	SetupCommands []string
	SetupTimeout  time.Duration
	Attach        bool
	AttachCommand string
}

// Manager composes provisioner, waiter, executor, and the connection
// record store.
type Manager struct {
	api     API
	records state.Store
	out     io.Writer
	dial    DialFunc
	waiter  *readiness.Waiter
}

// New returns a manager using SSH as the remote shell transport.
func New(api API, records state.Store, out io.Writer) *Manager {
	m := &Manager{
		api:     api,
		records: records,
		out:     out,
		dial: func(ctx context.Context, h *models.ResourceHandle) (remote.Transport, error) {
			return remote.DialSSH(ctx, h)
		},
	}
	m.waiter = readiness.New(api)
	return m
}

// Launch provisions a machine per spec and brings it to Ready, then
// runs the setup phase. Any failure before Ready tears down whatever
// was created and surfaces the original error; failures after Ready
// leave the machine running for inspection.
func (m *Manager) Launch(ctx context.Context, spec models.ResourceSpec, opts LaunchOptions) (*models.ResourceHandle, error) {
	fmt.Fprintf(m.out, "🚀 Creating machine %q in %s (%s)...\n", spec.Name, spec.Region, spec.Size)
	handle, err := provision.New(m.api).Create(ctx, spec)
	if err != nil {
		// The provisioner already rolled back its own partial state.
		return nil, err
	}

	fmt.Fprintf(m.out, "⏳ Waiting for machine %s to become ready...\n", handle.ID)
	prober := &remote.Prober{Dial: func(ctx context.Context) (remote.Transport, error) {
		return m.dial(ctx, handle)
	}}
	if err := m.waiter.WaitReady(ctx, handle, prober); err != nil {
		m.teardown(handle)
		return nil, err
	}

	// Write the connection record first: even if setup fails the user
	// must be able to reconnect by hand.
	if err := m.records.Save(state.FromHandle(handle)); err != nil {
		fmt.Fprintf(m.out, "⚠️  Could not write connection record: %v\n", err)
	}
	fmt.Fprintf(m.out, "✅ Machine %s is ready at %s\n", handle.ID, handle.SSHTarget())

	transport, err := m.dial(ctx, handle)
	if err != nil {
		return handle, err
	}
	defer transport.Close()
	runner := remote.NewRunner(transport)

	if err := runner.InjectEnv(ctx, opts.Env); err != nil {
		return handle, err
	}

	timeout := opts.SetupTimeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	for _, command := range opts.SetupCommands {
		fmt.Fprintf(m.out, "▶ %s\n", command)
		res, err := runner.Run(ctx, command, timeout)
		if err != nil {
			return handle, err
		}
		if res.Killed || res.ExitCode != 0 {
			return handle, &models.RemoteExecError{
				Command:  command,
				ExitCode: res.ExitCode,
				Killed:   res.Killed,
				Output:   res.Output,
			}
		}
	}

	if opts.Attach {
		launcher := &remote.Launcher{Out: m.out}
		if _, err := launcher.Attach(transport, handle, opts.AttachCommand); err != nil {
			return handle, err
		}
	}
	return handle, nil
}

// Destroy deletes the machine's resources, volume first. It is
// idempotent: destroying an already-destroyed handle succeeds.
func (m *Manager) Destroy(ctx context.Context, handle *models.ResourceHandle) error {
	var errs []error
	if handle.VolumeID != "" {
		if err := m.api.DeleteVolume(ctx, handle.VolumeID); err != nil {
			errs = append(errs, fmt.Errorf("delete volume %s: %w", handle.VolumeID, err))
		}
	}
	if handle.ID != "" {
		if err := m.api.DeleteMachine(ctx, handle.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete machine %s: %w", handle.ID, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	// Drop the connection record if it points at this machine, so a
	// later connect/status says "no saved machine" instead of dialing
	// a dead one.
	if rec, err := m.records.Load(); err == nil && rec.MachineID == handle.ID {
		if err := m.records.Clear(); err != nil {
			fmt.Fprintf(m.out, "⚠️  Could not remove connection record: %v\n", err)
		}
	}
	return handle.Transition(models.StateDestroyed)
}

// teardown is the rollback path for provisioning failures: best
// effort, on a fresh context because the original may already be
// cancelled, and its own failures never mask the provisioning error.
func (m *Manager) teardown(handle *models.ResourceHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Fprintf(m.out, "🧹 Cleaning up partially created resources...\n")
	handle.Transition(models.StateFailed)
	if handle.VolumeID != "" {
		if err := m.api.DeleteVolume(ctx, handle.VolumeID); err != nil {
			fmt.Fprintf(m.out, "⚠️  Could not delete volume %s: %v (delete it at https://console.nimbus.dev)\n", handle.VolumeID, err)
		}
	}
	if handle.ID != "" {
		if err := m.api.DeleteMachine(ctx, handle.ID); err != nil {
			fmt.Fprintf(m.out, "⚠️  Could not delete machine %s: %v (delete it at https://console.nimbus.dev)\n", handle.ID, err)
		}
	}
	handle.Transition(models.StateDestroyed)
}

// Run executes one command on an already-ready machine.
func (m *Manager) Run(ctx context.Context, handle *models.ResourceHandle, command string, timeout time.Duration) (models.ExecutionResult, error) {
	transport, err := m.dial(ctx, handle)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	defer transport.Close()
	return remote.NewRunner(transport).Run(ctx, command, timeout)
}

// Attach opens an interactive session on an already-ready machine.
func (m *Manager) Attach(ctx context.Context, handle *models.ResourceHandle, command string) (int, error) {
	transport, err := m.dial(ctx, handle)
	if err != nil {
		return -1, err
	}
	defer transport.Close()
	return (&remote.Launcher{Out: m.out}).Attach(transport, handle, command)
}
