package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/audit"
	"github.com/zackproser/portfolio-sub002/loader"
	"github.com/zackproser/portfolio-sub002/manifest"
	"github.com/zackproser/portfolio-sub002/provider"
)

// testEnv is an isolated manifests directory and state directory.
type testEnv struct {
	manifests string
	state     string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	env := testEnv{manifests: t.TempDir(), state: t.TempDir()}
	for _, name := range []string{"openai-api.yaml", "pinecone.yaml"} {
		data, err := os.ReadFile(filepath.Join("testdata", "manifests", name))
		if err != nil {
			t.Fatal(err)
		}
		env.write(t, name, string(data))
	}
	return env
}

func (e testEnv) write(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.manifests, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e testEnv) args(args ...string) []string {
	return append(args,
		"--manifests-dir", e.manifests,
		"--sqlite-path", filepath.Join(e.state, "factcheck.db"),
	)
}

// executeCommand runs a fresh command tree with the given args and captures stdout/stderr.
func executeCommand(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	root := NewRootCmd("test")
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.ExecuteContext(ctx)
	return outBuf.String(), errBuf.String(), err
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeCommand(context.Background(), args...)
	return stdout, err
}

func wantExit(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError with code %d", err, code)
	}
	if exitErr.Code != code {
		t.Fatalf("exit code = %d (%s), want %d", exitErr.Code, exitErr.Message, code)
	}
}

func TestValidate_AllValid(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("validate")...)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	for _, want := range []string{
		"ok    openai-api (llm_api,",
		"ok    pinecone (vector_db,",
		"2 manifests: 2 valid",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_ReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	openAI, _ := os.ReadFile(filepath.Join(env.manifests, "openai-api.yaml"))
	gap := strings.Replace(string(openAI), "slug: openai-api", "slug: openai-gap", 1)
	gap = strings.Replace(gap, "  - path: /facts/sdks/official\n", "  - path: /facts/sdks\n", 1)
	env.write(t, "openai-gap.yaml", gap)
	env.write(t, "broken.yaml", "slug: broken\nname: [\n")

	out, err := run(t, env.args("validate")...)
	wantExit(t, err, exitValidation)
	for _, want := range []string{
		"FAIL  broken [parse]",
		"FAIL  openai-gap [provenance]",
		"missing provenance: /facts/sdks/official/0",
		"missing provenance: /facts/sdks/official/1",
		"4 manifests: 2 valid, 1 parse error, 1 provenance error",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_SlugsAndCategory(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("validate", "pinecone")...)
	if err != nil {
		t.Fatalf("validate pinecone: %v", err)
	}
	if strings.Contains(out, "openai-api") {
		t.Fatalf("only the named slug should be validated:\n%s", out)
	}

	out, err = run(t, env.args("validate", "--category", "llm_api")...)
	if err != nil {
		t.Fatalf("validate --category: %v", err)
	}
	if !strings.Contains(out, "1 manifest: 1 valid") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	_, err = run(t, env.args("validate", "--category", "database")...)
	wantExit(t, err, exitFailure)
}

func TestValidate_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := run(t, env.args("validate", "ghost")...)
	wantExit(t, err, exitNotFound)
}

func TestValidate_JSONAndRecord(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("validate", "--format", "json", "--record")...)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var report audit.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decoding report: %v\n%s", err, out)
	}
	if len(report.Results) != 2 || !report.OK() {
		t.Fatalf("report = %+v", report)
	}
	if report.Results[0].Category != manifest.CategoryLLMAPI {
		t.Fatalf("first result category = %q", report.Results[0].Category)
	}

	out, err = run(t, env.args("history")...)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, report.RunID) || !strings.Contains(out, "2/2 valid") {
		t.Fatalf("history missing run %s:\n%s", report.RunID, out)
	}

	out, err = run(t, env.args("history", report.RunID)...)
	if err != nil {
		t.Fatalf("history <id>: %v", err)
	}
	if !strings.Contains(out, "ok    pinecone") {
		t.Fatalf("unexpected history detail:\n%s", out)
	}

	_, err = run(t, env.args("history", "no-such-run")...)
	wantExit(t, err, exitNotFound)
}

func TestHistory_Empty(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("history")...)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if strings.TrimSpace(out) != "No recorded audits." {
		t.Fatalf("output = %q", out)
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("list")...)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "openai-api\npinecone\n" {
		t.Fatalf("list output = %q", out)
	}

	out, err = run(t, env.args("list", "--category", "vector_db")...)
	if err != nil {
		t.Fatalf("list --category: %v", err)
	}
	if out != "pinecone\n" {
		t.Fatalf("list --category output = %q", out)
	}
}

func TestCoverage(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("coverage", "openai-api")...)
	if err != nil {
		t.Fatalf("coverage: %v\n%s", err, out)
	}
	for _, want := range []string{
		"/facts/vendor",
		"array_element",
		"/facts/models/0",
		"facts covered",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	openAI, _ := os.ReadFile(filepath.Join(env.manifests, "openai-api.yaml"))
	gap := strings.Replace(string(openAI), "slug: openai-api", "slug: openai-gap", 1)
	gap = strings.Replace(gap, "  - path: /facts/vendor\n", "  - path: /facts/vendors\n", 1)
	env.write(t, "openai-gap.yaml", gap)

	out, err = run(t, env.args("coverage", "openai-gap")...)
	wantExit(t, err, exitValidation)
	if !strings.Contains(out, "MISSING") || !strings.Contains(out, "orphan citation: /facts/vendors") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	_, err = run(t, env.args("coverage", "ghost")...)
	wantExit(t, err, exitNotFound)
}

func TestSyncThenSQLiteProvider(t *testing.T) {
	env := newTestEnv(t)

	out, err := run(t, env.args("sync", "--from", env.manifests)...)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(out, "Imported 2 manifests") {
		t.Fatalf("sync output = %q", out)
	}

	out, err = run(t, env.args("validate", "--provider", "sqlite")...)
	if err != nil {
		t.Fatalf("validate via sqlite: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 manifests: 2 valid") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := run(t, env.args("validate", "--provider", "s3")...)
	wantExit(t, err, exitConfig)

	_, err = run(t, env.args("validate", "--config", filepath.Join(env.state, "missing.yaml"))...)
	wantExit(t, err, exitConfig)

	_, err = run(t, env.args("validate", "--format", "xml")...)
	wantExit(t, err, exitFailure)
}

func TestConfigFile(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := filepath.Join(env.state, "factcheck.yaml")
	cfg := "manifests_dir: " + env.manifests + "\nconcurrency: 1\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "openai-api\npinecone\n" {
		t.Fatalf("list output = %q", out)
	}
}

func TestWatch_RunsInitialAuditUntilCanceled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(500*time.Millisecond, cancel)
	defer timer.Stop()

	out, _, err := executeCommand(ctx, env.args("watch", "--schedule", "@daily")...)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out, "scheduled audit") || !strings.Contains(out, "2 valid") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = run(t, env.args("history")...)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "2/2 valid") {
		t.Fatalf("watch should record its audits:\n%s", out)
	}
}

func TestStopScheduler_OutlivesCommandContext(t *testing.T) {
	runner := audit.NewRunner(loader.New(provider.NewMemory(nil)))
	scheduler, err := audit.NewScheduler(audit.SchedulerConfig{Runner: runner, Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	if err := stopScheduler(scheduler, zap.NewNop()); err != nil {
		t.Fatalf("stopScheduler() = %v, want nil after the command context ends", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if out != "factcheck version test\n" {
		t.Fatalf("version output = %q", out)
	}
}
