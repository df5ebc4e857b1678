package readiness

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/provider"
)

type scriptedPoller struct {
	statuses []string
	calls    int
}

func (p *scriptedPoller) GetMachine(ctx context.Context, id string) (provider.Machine, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.statuses) {
		idx = len(p.statuses) - 1
	}
	return provider.Machine{ID: id, Status: p.statuses[idx], PublicIP: "203.0.113.20"}, nil
}

type scriptedProber struct {
	failures int
	calls    int
}

func (p *scriptedProber) Probe(ctx context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func testWaiter(p StatusPoller) *Waiter {
	w := New(p)
	w.PollInterval = time.Millisecond
	w.ProbeInterval = time.Millisecond
	w.sleep = func(time.Duration) {}
	return w
}

func creatingHandle(t *testing.T) *models.ResourceHandle {
	t.Helper()
	h := models.NewHandle(models.ResourceSpec{Name: "box", Region: "us-east", Size: "small"})
	if err := h.Transition(models.StateCreating); err != nil {
		t.Fatalf("setup transition: %v", err)
	}
	h.ID = "m-1"
	return h
}

func TestWaitReadyAfterThreeNotStartedPolls(t *testing.T) {
	poller := &scriptedPoller{statuses: []string{
		provider.StatusNew, provider.StatusStarting, provider.StatusStarting, provider.StatusRunning,
	}}
	w := testWaiter(poller)
	h := creatingHandle(t)

	if err := w.WaitReady(context.Background(), h, &scriptedProber{}); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if poller.calls != 4 {
		t.Errorf("expected exactly 4 polls, got %d", poller.calls)
	}
	if h.State() != models.StateReady {
		t.Errorf("state = %s, want ready", h.State())
	}
	if h.Host != "203.0.113.20" {
		t.Errorf("address not refreshed from poll: %q", h.Host)
	}
}

func TestNeverStartedFailsAfterExactlyMaxPolls(t *testing.T) {
	poller := &scriptedPoller{statuses: []string{provider.StatusStarting}}
	w := testWaiter(poller)
	w.MaxPolls = 7
	h := creatingHandle(t)

	err := w.WaitReady(context.Background(), h, &scriptedProber{})
	var timeout *models.ReadinessTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ReadinessTimeoutError, got %v", err)
	}
	if timeout.Phase != models.PhaseProviderStart {
		t.Errorf("phase = %s, want provider start", timeout.Phase)
	}
	if poller.calls != 7 {
		t.Errorf("expected exactly 7 polls, got %d", poller.calls)
	}
}

func TestStartedButUnreachableReportsShellPhase(t *testing.T) {
	poller := &scriptedPoller{statuses: []string{provider.StatusRunning}}
	w := testWaiter(poller)
	w.MaxProbes = 3
	h := creatingHandle(t)

	err := w.WaitReady(context.Background(), h, &scriptedProber{failures: 100})
	var timeout *models.ReadinessTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ReadinessTimeoutError, got %v", err)
	}
	if timeout.Phase != models.PhaseShellProbe {
		t.Errorf("phase = %s, want shell probe", timeout.Phase)
	}
	if h.State() != models.StateStarted {
		t.Errorf("state = %s, want started (provider phase passed)", h.State())
	}
}

func TestShellProbeRetriesThenSucceeds(t *testing.T) {
	poller := &scriptedPoller{statuses: []string{provider.StatusRunning}}
	w := testWaiter(poller)
	h := creatingHandle(t)
	prober := &scriptedProber{failures: 2}

	if err := w.WaitReady(context.Background(), h, prober); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if prober.calls != 3 {
		t.Errorf("expected 3 probe attempts, got %d", prober.calls)
	}
}

func TestErroredMachineFailsFast(t *testing.T) {
	poller := &scriptedPoller{statuses: []string{provider.StatusErrored}}
	w := testWaiter(poller)
	h := creatingHandle(t)

	err := w.WaitReady(context.Background(), h, &scriptedProber{})
	if err == nil {
		t.Fatal("expected failure for errored machine")
	}
	if poller.calls != 1 {
		t.Errorf("errored status should not be re-polled, got %d polls", poller.calls)
	}
}
