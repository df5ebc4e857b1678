package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSession simulates a remote command that writes some output, runs
// for a fixed duration, and exits with a fixed status.
type fakeSession struct {
	runFor time.Duration
	exit   int
	output string

	killed   chan struct{}
	killOnce sync.Once

	mu            sync.Mutex
	command       string
	stdinEOF      bool
	eofBeforeExit bool
	stdinWasNil   bool
}

func newFakeSession(runFor time.Duration, exit int, output string) *fakeSession {
	return &fakeSession{runFor: runFor, exit: exit, output: output, killed: make(chan struct{})}
}

func (s *fakeSession) Start(command string, stdin io.Reader, stdout, stderr io.Writer) error {
	s.mu.Lock()
	s.command = command
	s.stdinWasNil = stdin == nil
	s.mu.Unlock()
	if stdin != nil {
		go func() {
			_, err := stdin.Read(make([]byte, 1))
			if err == io.EOF {
				s.mu.Lock()
				s.stdinEOF = true
				s.mu.Unlock()
			}
		}()
	}
	if s.output != "" {
		stdout.Write([]byte(s.output))
	}
	return nil
}

func (s *fakeSession) Wait() error {
	select {
	case <-time.After(s.runFor):
		s.mu.Lock()
		s.eofBeforeExit = s.stdinEOF
		s.mu.Unlock()
		if s.exit != 0 {
			return &ExitError{Status: s.exit}
		}
		return nil
	case <-s.killed:
		return errors.New("session channel closed")
	}
}

func (s *fakeSession) Kill() error {
	s.killOnce.Do(func() { close(s.killed) })
	return nil
}

func (s *fakeSession) Close() error { return nil }

type fakeTransport struct {
	session    *fakeSession
	sessionErr error
	keepalives atomic.Int64
	closed     atomic.Bool
}

func (t *fakeTransport) NewSession() (Session, error) {
	if t.sessionErr != nil {
		return nil, t.sessionErr
	}
	return t.session, nil
}

func (t *fakeTransport) Keepalive() error {
	t.keepalives.Add(1)
	return nil
}

func (t *fakeTransport) Interactive(command string) (int, error) { return 0, nil }

func (t *fakeTransport) Close() error {
	t.closed.Store(true)
	return nil
}

func TestRunReportsNaturalExitCode(t *testing.T) {
	ft := &fakeTransport{session: newFakeSession(10*time.Millisecond, 1, "boom\n")}
	r := NewRunner(ft)

	res, err := r.Run(context.Background(), "false", time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 1 || res.Killed {
		t.Errorf("result = %+v, want exit 1, not killed", res)
	}
	if res.Output != "boom\n" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunZeroExit(t *testing.T) {
	ft := &fakeTransport{session: newFakeSession(5*time.Millisecond, 0, "ok")}
	r := NewRunner(ft)

	res, err := r.Run(context.Background(), "true", time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 || res.Killed {
		t.Errorf("result = %+v", res)
	}
}

func TestWallClockCeilingKillsCommand(t *testing.T) {
	ft := &fakeTransport{session: newFakeSession(10*time.Second, 0, "")}
	r := NewRunner(ft)

	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 10", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Killed {
		t.Error("expected the result to be marked killed")
	}
	if res.ExitCode == 0 {
		t.Error("a killed command must not look like a clean exit")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("kill took %v, ceiling was 50ms", elapsed)
	}
}

func TestHeartbeatRunsDuringCommandAndStopsAfter(t *testing.T) {
	// Command outlives the keepalive interval but not the ceiling.
	ft := &fakeTransport{session: newFakeSession(100*time.Millisecond, 0, "")}
	r := NewRunner(ft)
	r.KeepaliveInterval = 10 * time.Millisecond

	res, err := r.Run(context.Background(), "sleep 0.1", time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Killed || res.ExitCode != 0 {
		t.Fatalf("result = %+v", res)
	}
	sent := ft.keepalives.Load()
	if sent == 0 {
		t.Error("expected at least one keepalive during the command")
	}
	// The heartbeat goroutine must not outlive the call.
	time.Sleep(50 * time.Millisecond)
	if after := ft.keepalives.Load(); after != sent {
		t.Errorf("keepalives kept flowing after Run returned: %d -> %d", sent, after)
	}
}

func TestStdinStaysOpenUntilExit(t *testing.T) {
	sess := newFakeSession(30*time.Millisecond, 0, "")
	ft := &fakeTransport{session: sess}
	r := NewRunner(ft)

	if _, err := r.Run(context.Background(), "cat", time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.stdinWasNil {
		t.Error("stdin was not wired")
	}
	if sess.eofBeforeExit {
		t.Error("stdin hit EOF before the command exited")
	}
}

func TestInjectEnvQuotesValues(t *testing.T) {
	sess := newFakeSession(time.Millisecond, 0, "")
	ft := &fakeTransport{session: sess}
	r := NewRunner(ft)

	err := r.InjectEnv(context.Background(), map[string]string{
		"OPENROUTER_API_KEY": "sk-or-123",
		"MODEL_ID":           "some model's id",
	})
	if err != nil {
		t.Fatalf("inject env: %v", err)
	}
	sess.mu.Lock()
	cmd := sess.command
	sess.mu.Unlock()
	if !strings.Contains(cmd, ">> ~/.profile") {
		t.Errorf("command does not append to profile: %q", cmd)
	}
	if !strings.Contains(cmd, "export MODEL_ID=") || !strings.Contains(cmd, "export OPENROUTER_API_KEY=") {
		t.Errorf("command missing export lines: %q", cmd)
	}
	if strings.Contains(cmd, "some model's id ") {
		t.Errorf("embedded quote crossed the shell boundary unescaped: %q", cmd)
	}
}

func TestProber(t *testing.T) {
	okSession := newFakeSession(time.Millisecond, 0, probeSentinel+"\n")
	okTransport := &fakeTransport{session: okSession}
	p := &Prober{Dial: func(ctx context.Context) (Transport, error) { return okTransport, nil }}
	if err := p.Probe(context.Background()); err != nil {
		t.Errorf("probe should succeed: %v", err)
	}
	if !okTransport.closed.Load() {
		t.Error("probe must close its connection")
	}

	p = &Prober{Dial: func(ctx context.Context) (Transport, error) { return nil, fmt.Errorf("connection refused") }}
	if err := p.Probe(context.Background()); err == nil {
		t.Error("probe should fail when dial fails")
	}

	badSession := newFakeSession(time.Millisecond, 127, "sh: not found\n")
	p = &Prober{Dial: func(ctx context.Context) (Transport, error) {
		return &fakeTransport{session: badSession}, nil
	}}
	if err := p.Probe(context.Background()); err == nil {
		t.Error("probe should fail on non-zero exit")
	}
}
