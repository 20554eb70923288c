package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogStages(t *testing.T) {
	out, err := runCLI(t, "catalog", "stages")
	if err != nil {
		t.Fatalf("catalog stages: %v", err)
	}
	for _, want := range []string{"lead_submission", "ongoing_service", "marketing_coordinator", "stages"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestCatalogRolesAndRules(t *testing.T) {
	out, err := runCLI(t, "catalog", "roles")
	if err != nil {
		t.Fatalf("catalog roles: %v", err)
	}
	if !strings.Contains(out, "Administrator") || !strings.Contains(out, "all") {
		t.Errorf("roles output missing admin wildcard row:\n%s", out)
	}

	out, err = runCLI(t, "catalog", "rules")
	if err != nil {
		t.Fatalf("catalog rules: %v", err)
	}
	if !strings.Contains(out, "qualified_lead_ready") || !strings.Contains(out, "manual") {
		t.Errorf("rules output incomplete:\n%s", out)
	}
}

func TestCatalogValidate_tuningFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := "default_estimate_days: 10\ncompletion_estimates:\n  lead_validation: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "catalog", "validate", "--tuning", path)
	if err != nil {
		t.Fatalf("catalog validate: %v", err)
	}
	if !strings.Contains(out, "catalog ok: 30 stages") {
		t.Errorf("output = %q, want catalog ok line", out)
	}
	if !strings.Contains(out, "tuning ok: "+path) {
		t.Errorf("output = %q, want tuning ok line", out)
	}
}

func TestCatalogValidate_badTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("completion_estimates:\n  no_such_stage: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "catalog", "validate", "--tuning", path); err == nil {
		t.Fatal("expected error for tuning with unknown stage")
	}
}

func TestDemo(t *testing.T) {
	var out bytes.Buffer
	if err := runDemo(context.Background(), &out, zap.NewNop()); err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	text := strings.ToLower(out.String())
	for _, want := range []string{
		"acme-corp journey",
		"approved by sam",
		"approved by fran",
		"dashboard: 2 workflows, 1 blocked",
		"stage occupancy",
		"casey moreau",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("demo output missing %q:\n%s", want, text)
		}
	}
}

func TestRun_unknownCommand(t *testing.T) {
	if code := run([]string{"no-such-command"}); code != 1 {
		t.Errorf("run exit code = %d, want 1", code)
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable("", []string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(got, "A") || !strings.Contains(got, "3") {
		t.Errorf("renderTable output:\n%s", got)
	}
	if renderTable("x", nil, nil, nil) != "" {
		t.Error("renderTable with no headers should be empty")
	}
}
