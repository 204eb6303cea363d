package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/tbgen/internal/facts"
)

func TestTbgenE2E_Testdata(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the tbgen binary")
	}
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot)
	env := testEnv(t)

	src := filepath.Join(repoRoot, "testdata", "verilog")
	out := t.TempDir()
	stdout, stderr, err := runTbgen(t, bin, env, "--seed", "3", "--out", out, src)
	if err != nil {
		t.Fatalf("tbgen failed: %v\nstdout:\n%s\nstderr:\n%s", err, stdout, stderr)
	}

	for _, module := range []string{"counter", "fifo", "mux"} {
		data, err := os.ReadFile(filepath.Join(out, "tb_"+module+".v"))
		if err != nil {
			t.Fatalf("missing testbench for %s: %v", module, err)
		}
		text := string(data)
		if !strings.HasPrefix(text, "module tb_"+module+"();") || !strings.HasSuffix(text, "endmodule\n") {
			t.Fatalf("testbench for %s is not a complete module:\n%s", module, text)
		}
	}

	fifo, _ := os.ReadFile(filepath.Join(out, "tb_fifo.v"))
	for _, want := range []string{"parameter WIDTH = 8;", "parameter DEPTH = 16;", "reg [7:0] din;", "wire [7:0] dout;"} {
		if !strings.Contains(string(fifo), want) {
			t.Fatalf("tb_fifo.v missing %q:\n%s", want, fifo)
		}
	}

	again := t.TempDir()
	if _, stderr, err := runTbgen(t, bin, env, "--seed", "3", "--out", again, src); err != nil {
		t.Fatalf("second run failed: %v\n%s", err, stderr)
	}
	first, _ := os.ReadFile(filepath.Join(out, "tb_counter.v"))
	second, _ := os.ReadFile(filepath.Join(again, "tb_counter.v"))
	if !bytes.Equal(first, second) {
		t.Fatalf("seeded runs differ")
	}
}

func TestTbgenE2E_Facts(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the tbgen binary")
	}
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot)

	stdout, stderr, err := runTbgen(t, bin, testEnv(t), "facts", filepath.Join(repoRoot, "testdata", "verilog"))
	if err != nil {
		t.Fatalf("tbgen facts failed: %v\n%s", err, stderr)
	}
	var tables facts.Tables
	if err := json.Unmarshal([]byte(stdout), &tables); err != nil {
		t.Fatalf("parse facts JSON: %v\n%s", err, stdout)
	}
	if len(tables.Modules) != 3 {
		t.Fatalf("expected 3 modules, got %+v", tables.Modules)
	}
}

func TestTbgenE2E_InvalidExitsNonZero(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the tbgen binary")
	}
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot)

	_, stderr, err := runTbgen(t, bin, testEnv(t), "--stdout", filepath.Join(repoRoot, "testdata", "invalid"))
	if err == nil {
		t.Fatalf("expected non-zero exit for a file without a module")
	}
	if !strings.Contains(stderr, "missing module declaration") {
		t.Fatalf("expected missing module error, got:\n%s", stderr)
	}
}

func testEnv(t *testing.T) []string {
	home := t.TempDir()
	return append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
	)
}

func runTbgen(t *testing.T, bin string, env []string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Env = env
	cmd.Dir = t.TempDir()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	binPath := filepath.Join(t.TempDir(), "tbgen")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/tbgen")
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build tbgen failed: %v\n%s", err, string(out))
	}
	return binPath
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := start
	for {
		candidate := filepath.Join(dir, "testdata", "verilog", "counter.v")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root not found from %s", start)
		}
		dir = parent
	}
}
