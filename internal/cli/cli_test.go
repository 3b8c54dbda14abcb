package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/pvrun/internal/history"
)

const statusReport = `
Network devices using kernel driver
===================================
0000:03:00.0 '82599ES 10-Gigabit SFI/SFP+ Network Connection 10fb' if=eth0 drv=ixgbe unused=uio_pci_generic
`

const appConfig = `
cores: [0, 1]
nics:
  - dev: eth0
    rx_queue: 1024
    tx_queue: 1024
memory:
  shared_memory: 1000000
  packet_pool: 2048
`

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	if strings.HasSuffix(cmd, "--status-dev net") {
		return statusReport, nil
	}
	return "", nil
}

type env struct {
	dir      string
	settings string
	appCfg   string
	runner   *fakeRunner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, "")
}

// newEnvWith appends extra top-level sections to the settings file.
func newEnvWith(t *testing.T, extra string) *env {
	t.Helper()
	dir := t.TempDir()

	settings := fmt.Sprintf(`
lock:
  path: %s
child:
  temp_dir: %s
history:
  enabled: true
  path: %s
logging:
  level: warn
%s`, filepath.Join(dir, "pvrun.lock"), dir, filepath.Join(dir, "history.db"), extra)

	e := &env{
		dir:      dir,
		settings: writeFile(t, dir, "pvrun.yaml", settings),
		appCfg:   writeFile(t, dir, "config.yaml", appConfig),
		runner:   &fakeRunner{},
	}
	t.Setenv(EnvConfig, e.settings)
	return e
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (e *env) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdin: strings.NewReader(stdin), stdout: &stdout, stderr: &stderr}
	if e != nil {
		a.runner = e.runner
	}
	code := a.execute(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestVersion(t *testing.T) {
	res := (*env)(nil).run(t, "", "version", "--short")
	if res.code != 0 || res.stdout != "dev\n" {
		t.Errorf("version --short = %d %q", res.code, res.stdout)
	}

	res = (*env)(nil).run(t, "", "version")
	if !strings.HasPrefix(res.stdout, "pvrun dev (") || !strings.Contains(res.stdout, "Platform:") {
		t.Errorf("version = %q", res.stdout)
	}
}

func TestFlatten(t *testing.T) {
	want := strings.Join([]string{
		"/:type dict",
		"/:length 2",
		"/:keys[0] a",
		"/a/:type bool",
		"/a/ 1",
		"/:keys[1] b",
		"/b/:type list",
		"/b/:length 2",
		"/b[0]/:type num",
		"/b[0]/ 1",
		"/b[1]/:type num",
		"/b[1]/ 2",
	}, "\n") + "\n"

	path := writeFile(t, t.TempDir(), "doc.yaml", "b: [1, 2]\na: true\n")

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{name: "file", args: []string{"flatten", path}},
		{name: "stdin", stdin: "{a: true, b: [1, 2]}", args: []string{"flatten", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := (*env)(nil).run(t, tt.stdin, tt.args...)
			if res.code != 0 {
				t.Fatalf("exit %d: %s", res.code, res.stderr)
			}
			if res.stdout != want {
				t.Errorf("output =\n%s\nwant\n%s", res.stdout, want)
			}
		})
	}
}

func TestFlatten_RejectsNull(t *testing.T) {
	res := (*env)(nil).run(t, "a: ~\n", "flatten", "-")
	if res.code != 1 || !strings.Contains(res.stderr, "invalid configuration shape") {
		t.Errorf("flatten null = %d %q", res.code, res.stderr)
	}
}

func TestInspect(t *testing.T) {
	encoded := (*env)(nil).run(t, "nics:\n  - dev: eth0\n    rx_queue: 512\nname: probe\n", "flatten", "-")
	if encoded.code != 0 {
		t.Fatalf("flatten failed: %s", encoded.stderr)
	}
	path := writeFile(t, t.TempDir(), "pv-config.txt", encoded.stdout)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     string
	}{
		{name: "whole document", args: []string{path}, want: "name: probe\nnics:\n    - dev: eth0\n      rx_queue: 512\n"},
		{name: "scalar", args: []string{path, "/nics[0]/rx_queue"}, want: "512\n"},
		{name: "several paths", args: []string{path, "/name", "/nics[0]/dev"}, want: "# /name\nprobe\n# /nics[0]/dev\neth0\n"},
		{name: "missing path", args: []string{path, "/nope"}, wantCode: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := (*env)(nil).run(t, "", append([]string{"inspect"}, tt.args...)...)
			if res.code != tt.wantCode {
				t.Fatalf("exit = %d, want %d (%s)", res.code, tt.wantCode, res.stderr)
			}
			if tt.wantCode == 0 && res.stdout != tt.want {
				t.Errorf("output = %q, want %q", res.stdout, tt.want)
			}
		})
	}
}

func TestSize(t *testing.T) {
	e := newEnv(t)

	res := e.run(t, "", "size", e.appCfg)
	if res.code != 0 {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	for _, want := range []string{"required:  10 MiB (10,485,760 B)", "pages:     5 x 2.0 MiB", "unrounded: 9.3 MiB (9,738,608 B)"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}

	res = e.run(t, "", "size", "--page-size", "1073741824", e.appCfg)
	if !strings.Contains(res.stdout, "pages:     1 x 1.0 GiB") {
		t.Errorf("1 GiB pages output:\n%s", res.stdout)
	}
}

func TestDevices(t *testing.T) {
	e := newEnv(t)

	res := e.run(t, "", "devices")
	if res.code != 0 {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "eth0") || !strings.Contains(res.stdout, "0000:03:00.0") {
		t.Errorf("devices output:\n%s", res.stdout)
	}

	res = e.run(t, "", "devices", "--json")
	var devices []map[string]any
	if err := json.Unmarshal([]byte(res.stdout), &devices); err != nil || len(devices) != 1 {
		t.Fatalf("devices --json = %q, %v", res.stdout, err)
	}
	if devices[0]["driver"] != "ixgbe" {
		t.Errorf("driver = %v", devices[0]["driver"])
	}
}

func TestRun_DryRun(t *testing.T) {
	e := newEnv(t)

	res := e.run(t, "", "run", "--dry-run", "--app-config", e.appCfg, "/bin/true")
	if res.code != 0 {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "/nics[0]/dev/ 0000:03:00.0\n") {
		t.Errorf("dry run output:\n%s", res.stdout)
	}
	if len(e.runner.commands) != 1 {
		t.Errorf("dry run ran %v", e.runner.commands)
	}
}

func TestRun_ExitCodeAndHistory(t *testing.T) {
	e := newEnv(t)

	// Flags after the application belong to the application.
	res := e.run(t, "", "run", "--app-config", e.appCfg, "/bin/sh", "-c", "exit 4")
	if res.code != 4 {
		t.Fatalf("exit = %d, want 4 (%s)", res.code, res.stderr)
	}
	if strings.Contains(res.stderr, "Error:") {
		t.Errorf("application exit status reported as an error: %s", res.stderr)
	}

	res = e.run(t, "", "history", "--json")
	if res.code != 0 {
		t.Fatalf("history exit %d: %s", res.code, res.stderr)
	}
	var list history.ListResult
	if err := json.Unmarshal([]byte(res.stdout), &list); err != nil {
		t.Fatalf("decoding history: %v\n%s", err, res.stdout)
	}
	if list.Total != 1 || list.Runs[0].ExitCode == nil || *list.Runs[0].ExitCode != 4 {
		t.Fatalf("history = %+v", list)
	}

	res = e.run(t, "", "history")
	if !strings.Contains(res.stdout, "sh") || !strings.Contains(res.stdout, "ID") {
		t.Errorf("history table:\n%s", res.stdout)
	}
}

func TestRun_SetupFailure(t *testing.T) {
	e := newEnv(t)
	badCfg := writeFile(t, e.dir, "bad.yaml", strings.Replace(appConfig, "eth0", "eth7", 1))

	res := e.run(t, "", "run", "--app-config", badCfg, "/bin/true")
	if res.code != 1 || !strings.Contains(res.stderr, "Error:") {
		t.Errorf("run = %d %q", res.code, res.stderr)
	}
}

func TestRun_RequiresApplication(t *testing.T) {
	e := newEnv(t)
	if res := e.run(t, "", "run"); res.code != 1 {
		t.Errorf("run without application = %d", res.code)
	}
}

func TestSettings(t *testing.T) {
	t.Run("explicit missing file", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		res := (*env)(nil).run(t, "", "--config", filepath.Join(t.TempDir(), "none.yaml"), "devices")
		if res.code != 1 || !strings.Contains(res.stderr, "loading settings") {
			t.Errorf("devices = %d %q", res.code, res.stderr)
		}
	})

	t.Run("invalid settings", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "pvrun.yaml", "inventory:\n  source: carrier-pigeon\n")
		t.Setenv(EnvConfig, path)
		res := (*env)(nil).run(t, "", "devices")
		if res.code != 1 || !strings.Contains(res.stderr, "configuration errors") {
			t.Errorf("devices = %d %q", res.code, res.stderr)
		}
	})
}

func TestHistory_NoDatabase(t *testing.T) {
	e := newEnv(t)

	res := e.run(t, "", "history")
	if res.code != 0 || !strings.Contains(res.stderr, "no run history") {
		t.Errorf("history = %d %q", res.code, res.stderr)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		tools    string
		wantCode int
		want     []string
	}{
		{
			name:  "tools present",
			tools: "tools:\n  hugepages: /bin/sh\n  devbind: /bin/sh\n  modprobe: /bin/sh\n",
			want:  []string{"tool /bin/sh", "inventory", "1 device(s) via devbind", "history", "mqtt", "disabled"},
		},
		{
			name:     "missing tool",
			tools:    "tools:\n  hugepages: pvrun-missing-hugepage-tool\n  devbind: /bin/sh\n  modprobe: /bin/sh\n",
			wantCode: 1,
			want:     []string{"tool pvrun-missing-hugepage-tool", "FAIL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnvWith(t, tt.tools)

			res := e.run(t, "", "check")
			if res.code != tt.wantCode {
				t.Fatalf("exit = %d, want %d\n%s%s", res.code, tt.wantCode, res.stdout, res.stderr)
			}
			for _, want := range tt.want {
				if !strings.Contains(res.stdout, want) {
					t.Errorf("output missing %q:\n%s", want, res.stdout)
				}
			}
		})
	}
}

func TestEvents_UnreachableBroker(t *testing.T) {
	e := newEnvWith(t, "mqtt:\n  broker:\n    host: 127.0.0.1\n    port: 1\n")

	res := e.run(t, "", "events")
	if res.code != 1 || !strings.Contains(res.stderr, "Error:") {
		t.Errorf("events = %d %q", res.code, res.stderr)
	}
}
