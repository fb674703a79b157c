package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ramonehamilton/gammatrain/internal/config"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

func writeFixture(t *testing.T) (dir, configPath, recordsPath string) {
	t.Helper()
	dir = t.TempDir()

	configPath = filepath.Join(dir, "config.toml")
	cfg := fmt.Sprintf(`
[training]
iterations = 30
log_interval = "0s"

[registry]
uniform_prior_weight = 1.0

[[registry.groups]]
name = "Move"
dims = [3]

[storage]
database_path = %q

[model]
path = %q
report_dir = %q
`, filepath.Join(dir, "db", "test.db"), filepath.Join(dir, "weights.txt"), filepath.Join(dir, "reports"))
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	// Move[0] usually beats Move[1], which usually beats Move[2].
	var lines []string
	for i := 0; i < 40; i++ {
		chosen := 0
		if i%4 == 0 {
			chosen = 1
		}
		lines = append(lines, fmt.Sprintf(`{"candidates": [["Move[0]"], ["Move[1]"]], "chosen": %d}`, chosen))
		lines = append(lines, fmt.Sprintf(`{"candidates": [["Move[1]"], ["Move[2]", "Unknown"]], "chosen": %d}`, chosen))
	}
	recordsPath = filepath.Join(dir, "records.jsonl")
	if err := os.WriteFile(recordsPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, configPath, recordsPath
}

func TestImportTrainScore(t *testing.T) {
	dir, configPath, recordsPath := writeFixture(t)

	if err := runImport([]string{"-config", configPath, recordsPath}); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	// Re-importing with -replace must not duplicate.
	if err := runImport([]string{"-config", configPath, "-replace", recordsPath}); err != nil {
		t.Fatalf("re-import failed: %v", err)
	}

	if err := runTrain([]string{"-config", configPath, "-top", "3"}); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := cfg.Registry.BuildRegistry()
	if err != nil {
		t.Fatal(err)
	}
	model, err := weights.LoadFile(filepath.Join(dir, "weights.txt"), reg)
	if err != nil {
		t.Fatalf("Failed to load trained weights: %v", err)
	}
	if model.Iterations() != 30 {
		t.Errorf("Expected 30 iterations, got %d", model.Iterations())
	}

	g0, _ := reg.Lookup("Move[0]")
	g1, _ := reg.Lookup("Move[1]")
	g2, _ := reg.Lookup("Move[2]")
	if !(model.LogGamma(g0) > model.LogGamma(g1) && model.LogGamma(g1) > model.LogGamma(g2)) {
		t.Errorf("Expected Move[0] > Move[1] > Move[2], got %.3f %.3f %.3f",
			model.LogGamma(g0), model.LogGamma(g1), model.LogGamma(g2))
	}

	reports, err := os.ReadDir(filepath.Join(dir, "reports"))
	if err != nil || len(reports) != 1 {
		t.Errorf("Expected one report, got %v (%v)", reports, err)
	}

	if err := runScore([]string{"-config", configPath, "-quiet", "-input", recordsPath}); err != nil {
		t.Errorf("score failed: %v", err)
	}
	if err := runInspect([]string{"-config", configPath, "-top", "2"}); err != nil {
		t.Errorf("inspect failed: %v", err)
	}
	if err := runInspect([]string{"-config", configPath, "-feature", "Move[0]"}); err != nil {
		t.Errorf("inspect -feature failed: %v", err)
	}
}

func TestTrain_BaselineFromFile(t *testing.T) {
	dir, configPath, recordsPath := writeFixture(t)
	model := filepath.Join(dir, "baseline.txt")

	if err := runTrain([]string{"-config", configPath, "-learner", "baseline", "-input", recordsPath, "-model", model}); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	data, err := os.ReadFile(model)
	if err != nil {
		t.Fatalf("Weights file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), weights.FormatTag+"\n") {
		t.Errorf("Unexpected weights file header: %q", strings.SplitN(string(data), "\n", 2)[0])
	}
}

func TestTrain_WritesMetricsFile(t *testing.T) {
	dir, configPath, recordsPath := writeFixture(t)
	metricsPath := filepath.Join(dir, "textfile", "gammatrain.prom")

	args := []string{"-config", configPath, "-input", recordsPath, "-iterations", "7", "-metrics-out", metricsPath}
	if err := runTrain(args); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("Metrics file missing: %v", err)
	}
	if !strings.Contains(string(data), "gammatrain_training_passes_total 7") {
		t.Errorf("Expected 7 passes in metrics output, got:\n%s", data)
	}
}

func TestImport_RejectsBadRecord(t *testing.T) {
	dir, configPath, _ := writeFixture(t)
	bad := filepath.Join(dir, "bad.jsonl")
	if err := os.WriteFile(bad, []byte(`{"candidates": [["Move[0]"]], "chosen": 0}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runImport([]string{"-config", configPath, bad}); err == nil {
		t.Error("Expected a single-candidate record to be rejected")
	}
}
