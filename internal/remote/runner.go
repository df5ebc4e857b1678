package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/spinup-sh/spinup/internal/models"
)

// probeSentinel is echoed back by the readiness shell probe.
const probeSentinel = "spinup-ready"

// killGrace bounds how long we wait for a killed command to be
// confirmed dead before giving up on its exit status.
const killGrace = 5 * time.Second

// Runner executes non-interactive commands on one machine.
type Runner struct {
	transport Transport

	// KeepaliveInterval is how often heartbeat traffic is emitted
	// while a command runs. Several transports close sessions that
	// stay silent for around 30 seconds.
	KeepaliveInterval time.Duration
	// MaxOutputBytes bounds captured output; only the tail is kept.
	MaxOutputBytes int
}

// NewRunner returns a runner with a 10s heartbeat and 1 MiB of
// captured output.
func NewRunner(t Transport) *Runner {
	return &Runner{
		transport:         t,
		KeepaliveInterval: 10 * time.Second,
		MaxOutputBytes:    1 << 20,
	}
}

// Run executes command, capturing combined output. The command is
// bounded by timeout on the local wall clock: if it fires, the session
// is killed and the result is marked Killed instead of carrying the
// command's own exit status. A non-zero remote exit is reported in the
// result, not as an error; errors are transport-level failures only.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration) (models.ExecutionResult, error) {
	sess, err := r.transport.NewSession()
	if err != nil {
		return models.ExecutionResult{}, err
	}
	defer sess.Close()

	out := &tailBuffer{max: r.MaxOutputBytes}
	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()

	if err := sess.Start(command, stdinR, out, out); err != nil {
		return models.ExecutionResult{}, err
	}

	// Heartbeat for as long as the command runs. It is stopped, and
	// its goroutine joined, before Run returns.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.transport.Keepalive()
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		res := models.ExecutionResult{Output: out.String()}
		var exitErr *ExitError
		switch {
		case waitErr == nil:
		case errors.As(waitErr, &exitErr):
			res.ExitCode = exitErr.Status
		default:
			return res, waitErr
		}
		return res, nil

	case <-timer.C:
		sess.Kill()
		select {
		case <-done:
		case <-time.After(killGrace):
		}
		return models.ExecutionResult{Output: out.String(), ExitCode: -1, Killed: true}, nil

	case <-ctx.Done():
		sess.Kill()
		select {
		case <-done:
		case <-time.After(killGrace):
		}
		return models.ExecutionResult{Output: out.String(), ExitCode: -1, Killed: true}, ctx.Err()
	}
}

// InjectEnv appends export lines for vars to the remote user's profile,
// the same way the setup scripts seed agent API keys. Values are
// single-quote escaped before crossing the shell boundary.
func (r *Runner) InjectEnv(ctx context.Context, vars map[string]string) error {
	if len(vars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("export %s=%s", k, shellquote.Join(vars[k])))
	}
	script := strings.Join(lines, "\n")
	command := shellquote.Join("printf", "%s\n", script) + " >> ~/.profile"

	res, err := r.Run(ctx, command, time.Minute)
	if err != nil {
		return err
	}
	if res.Killed || res.ExitCode != 0 {
		return &models.RemoteExecError{Command: "env injection", ExitCode: res.ExitCode, Killed: res.Killed, Output: res.Output}
	}
	return nil
}

// Prober confirms a machine's shell answers by echoing a sentinel over
// a fresh connection per attempt.
type Prober struct {
	Dial func(ctx context.Context) (Transport, error)
}

// Probe dials, runs the sentinel echo, and closes the connection.
func (p *Prober) Probe(ctx context.Context) error {
	t, err := p.Dial(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	r := NewRunner(t)
	res, err := r.Run(ctx, "echo "+probeSentinel, 15*time.Second)
	if err != nil {
		return err
	}
	if res.Killed || res.ExitCode != 0 || !strings.Contains(res.Output, probeSentinel) {
		return fmt.Errorf("shell probe got exit %d, output %q", res.ExitCode, res.Output)
	}
	return nil
}

// tailBuffer keeps the last max bytes written. stdout and stderr share
// one instance, hence the lock.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
