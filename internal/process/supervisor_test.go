package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeSignals captures the channel registered by Run so tests can inject
// interrupts without signalling the test binary.
type fakeSignals struct {
	registered chan chan<- os.Signal
	stopped    chan chan<- os.Signal
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{
		registered: make(chan chan<- os.Signal, 1),
		stopped:    make(chan chan<- os.Signal, 1),
	}
}

func (f *fakeSignals) Notify(c chan<- os.Signal, sig ...os.Signal) {
	if len(sig) != 1 || sig[0] != os.Interrupt {
		panic("supervisor must only intercept the interrupt signal")
	}
	f.registered <- c
}

func (f *fakeSignals) Stop(c chan<- os.Signal) {
	f.stopped <- c
}

// waitForFile polls until path exists or the deadline passes.
func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

// waitForLines polls until path holds at least n lines.
func waitForLines(t *testing.T, path string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(path)
		if strings.Count(string(data), "\n") >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines in %s", n, path)
}

// trapScript exits with code 7 after receiving two interrupts.
const trapScript = `
n=0
trap 'n=$((n+1)); echo got >> "$TRAP_LOG"; if [ "$n" -ge 2 ]; then exit 7; fi' INT
touch "$READY"
while :; do sleep 0.05; done
`

func TestSupervisor_ExitCode(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "exit 0", 0},
		{"failure", "exit 3", 3},
		{"killed by signal", "kill -TERM $$", 143},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(Config{Name: "sh", Binary: "/bin/sh", Args: []string{"-c", tt.script}})
			s.SetSignalNotifier(newFakeSignals())

			code, err := s.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if code != tt.want {
				t.Errorf("Run() code = %d, want %d", code, tt.want)
			}
			if s.Status() != StatusExited {
				t.Errorf("Status() = %q, want %q", s.Status(), StatusExited)
			}
		})
	}
}

func TestSupervisor_StartFailure(t *testing.T) {
	s := NewSupervisor(Config{Name: "missing", Binary: "/nonexistent/app"})
	s.SetSignalNotifier(newFakeSignals())

	code, err := s.Run(context.Background())
	if !errors.Is(err, ErrStart) {
		t.Fatalf("Run() error = %v, want ErrStart", err)
	}
	if code != ExitCodeStartFailure {
		t.Errorf("Run() code = %d, want %d", code, ExitCodeStartFailure)
	}
	if s.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusFailed)
	}
}

func TestSupervisor_EnvironmentAndProcessGroup(t *testing.T) {
	var out bytes.Buffer
	s := NewSupervisor(Config{
		Name:   "env",
		Binary: "/bin/sh",
		Args:   []string{"-c", `echo "$PV_CONFIG"; ps -o pgid= -p $$ | tr -d ' '; echo $$`},
		Env:    []string{"PV_CONFIG=/tmp/pv-config-123.txt"},
		Stdout: &out,
	})
	s.SetSignalNotifier(newFakeSignals())

	code, err := s.Run(context.Background())
	if err != nil || code != 0 {
		t.Fatalf("Run() = %d, %v", code, err)
	}

	lines := strings.Fields(out.String())
	if len(lines) < 1 || lines[0] != "/tmp/pv-config-123.txt" {
		t.Fatalf("child saw PV_CONFIG = %q", out.String())
	}
	// ps is not available everywhere; only check the group when it printed.
	if len(lines) == 3 && lines[1] != lines[2] {
		t.Errorf("child pgid = %s, pid = %s: want the child to lead its own group", lines[1], lines[2])
	}
}

func TestSupervisor_ForwardsEachInterruptOnce(t *testing.T) {
	dir := t.TempDir()
	ready := filepath.Join(dir, "ready")
	trapLog := filepath.Join(dir, "trap.log")
	signals := newFakeSignals()

	s := NewSupervisor(Config{
		Name:   "trap",
		Binary: "/bin/sh",
		Args:   []string{"-c", trapScript},
		Env:    []string{"READY=" + ready, "TRAP_LOG=" + trapLog},
	})
	s.SetSignalNotifier(signals)

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := s.Run(context.Background())
		done <- result{code, err}
	}()

	ch := <-signals.registered
	waitForFile(t, ready)

	ch <- os.Interrupt
	waitForLines(t, trapLog, 1)
	ch <- os.Interrupt

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Run() error = %v", r.err)
		}
		if r.code != 7 {
			t.Errorf("Run() code = %d, want 7", r.code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("child did not exit after two interrupts")
	}

	if got := s.Forwarded(); got != 2 {
		t.Errorf("Forwarded() = %d, want 2", got)
	}

	select {
	case stopped := <-signals.stopped:
		if stopped != ch {
			t.Error("Stop() called with a different channel than Notify()")
		}
	default:
		t.Error("interrupt handler was not removed after the child exited")
	}
}

func TestSupervisor_ContextCancelForwardsOnce(t *testing.T) {
	dir := t.TempDir()
	ready := filepath.Join(dir, "ready")
	signals := newFakeSignals()

	s := NewSupervisor(Config{
		Name:   "cancel",
		Binary: "/bin/sh",
		Args:   []string{"-c", `trap 'exit 5' INT; touch "$READY"; while :; do sleep 0.05; done`},
		Env:    []string{"READY=" + ready},
	})
	s.SetSignalNotifier(signals)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(ctx)
		done <- code
	}()

	<-signals.registered
	waitForFile(t, ready)
	cancel()

	select {
	case code := <-done:
		if code != 5 {
			t.Errorf("Run() code = %d, want 5", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("child did not exit after cancellation")
	}
	if got := s.Forwarded(); got != 1 {
		t.Errorf("Forwarded() = %d, want 1", got)
	}
}

func TestSupervisor_Stats(t *testing.T) {
	s := NewSupervisor(Config{Name: "stats", Binary: "/bin/true"})
	s.SetSignalNotifier(newFakeSignals())

	if st := s.Stats(); st.Status != StatusIdle || st.PID != 0 {
		t.Errorf("initial Stats() = %+v", st)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	st := s.Stats()
	if st.Name != "stats" || st.Status != StatusExited || st.PID == 0 || st.ExitCode != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}
