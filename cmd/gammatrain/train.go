package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ramonehamilton/gammatrain/internal/charts"
	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/extract"
	"github.com/ramonehamilton/gammatrain/internal/learner"
	"github.com/ramonehamilton/gammatrain/internal/metrics"
	"github.com/ramonehamilton/gammatrain/internal/storage"
	"github.com/ramonehamilton/gammatrain/internal/strength"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var c common
	c.register(fs)
	input := fs.String("input", "", "Train from this JSON lines file instead of the database")
	kind := fs.String("learner", "", "Learner: strength or baseline (overrides config)")
	iterations := fs.Int("iterations", -1, "Training passes (overrides config)")
	top := fs.Int("top", 20, "Print this many of the strongest features")
	report := fs.String("report", "", "Write an HTML training report here (default: <report_dir>/<run id>.html)")
	open := fs.Bool("open", false, "Open the report in a browser")
	metricsOut := fs.String("metrics-out", "", "Write training counters in Prometheus text format to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := c.load()
	if err != nil {
		return err
	}
	if *kind != "" {
		e.cfg.Training.Learner = *kind
	}
	if *iterations >= 0 {
		e.cfg.Training.Iterations = *iterations
	}
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	corp, err := buildCorpus(ctx, e, db, *input)
	if err != nil {
		return err
	}
	log.Printf("Corpus: %d recorded matches, %d prior matches, %d features", corp.RealMatches(), corp.PriorMatches(), e.registry.Size())

	trainerCfg, err := e.cfg.TrainerConfig()
	if err != nil {
		return err
	}
	l, err := learner.New(learner.Kind(e.cfg.Training.Learner), trainerCfg)
	if err != nil {
		return err
	}

	run, err := db.Runs().Start(ctx, e.cfg.Training.Learner, corp.RealMatches(), e.registry.Size())
	if err != nil {
		return err
	}
	log.Printf("Training run %s started with the %s learner", run.ID, e.cfg.Training.Learner)

	var history []strength.PassStats
	tm := metrics.NewTrainingMetrics()
	if sl, ok := l.(*learner.StrengthLearner); ok {
		sl.Metrics = tm
		sl.OnPass = func(p strength.PassStats) {
			history = append(history, p)
			pass := storage.Pass{Pass: p.Pass, LogLikelihood: p.LogLikelihood, Accepted: p.Accepted, Rejected: p.Rejected, Duration: p.Duration}
			if err := db.Runs().AddPass(ctx, run.ID, pass); err != nil {
				log.Printf("Failed to record pass %d: %v", p.Pass, err)
			}
		}
	}

	model, err := l.Train(ctx, corp)
	if err != nil {
		// The run is recorded even when ctx is already cancelled.
		if failErr := db.Runs().Fail(context.Background(), run.ID, err); failErr != nil {
			log.Printf("Failed to record failed run: %v", failErr)
		}
		return err
	}

	if err := model.SaveFile(e.cfg.Model.Path); err != nil {
		return err
	}

	initial, final := 0.0, 0.0
	if sl, ok := l.(*learner.StrengthLearner); ok && sl.LastResult() != nil {
		initial, final = sl.LastResult().Initial, sl.LastResult().LogLikelihood
	}
	if err := db.Runs().Finish(ctx, run.ID, model.Iterations(), initial, final, e.cfg.Model.Path); err != nil {
		return err
	}

	fmt.Printf("Run %s: %d iterations, log-likelihood %.4f -> %.4f\n", run.ID, model.Iterations(), initial, final)
	fmt.Printf("Weights written to %s\n", e.cfg.Model.Path)
	printTop(model, *top)

	if *metricsOut != "" {
		if err := writeTrainingMetrics(*metricsOut, tm); err != nil {
			log.Printf("Failed to write metrics: %v", err)
		} else {
			stats := tm.GetStats()
			log.Printf("Training metrics: %d passes, %.1f%% accepted, p95 pass %.1fms, written to %s",
				stats.Passes, stats.AcceptRate, stats.PassLatency.P95, *metricsOut)
		}
	}

	reportPath := *report
	if reportPath == "" && e.cfg.Model.ReportDir != "" {
		reportPath = filepath.Join(e.cfg.Model.ReportDir, run.ID+".html")
	}
	if reportPath != "" {
		r := charts.Report{Title: "Training run " + run.ID, History: history, Top: model.Top(*top)}
		if err := r.RenderFile(reportPath, charts.DefaultChartConfig()); err != nil {
			log.Printf("Failed to write report: %v", err)
			return nil
		}
		fmt.Printf("Report written to %s\n", reportPath)
		if *open {
			if err := charts.OpenInBrowser(reportPath); err != nil {
				log.Printf("Failed to open browser: %v", err)
			}
		}
	}
	return nil
}

// buildCorpus featurizes records from input, or from the database when
// input is empty.
func buildCorpus(ctx context.Context, e *env, db *storage.DB, input string) (*corpus.Corpus, error) {
	b, err := e.newBuilder()
	if err != nil {
		return nil, err
	}

	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		stats, err := extract.Import(f, e.fz, b)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", input, err)
		}
		log.Printf("Read %d records from %s (%d unknown names skipped)", stats.Records, input, stats.Unresolved)
		return b.Build(), nil
	}

	unknown, n := 0, 0
	for rec, err := range db.Matches().Records(ctx) {
		if err != nil {
			return nil, err
		}
		m, rctx, err := extract.ToMatch(e.fz, rec)
		if err != nil {
			return nil, err
		}
		unknown += len(rctx.Unresolved)
		if err := b.Add(m); err != nil {
			return nil, fmt.Errorf("stored record %d: %w", n+1, err)
		}
		n++
	}
	if unknown > 0 {
		log.Printf("Skipped %d stored feature names the registry does not know", unknown)
	}
	if n == 0 {
		log.Printf("No stored records; training on priors only")
	}
	return b.Build(), nil
}

// writeTrainingMetrics exports the run's counters for a node_exporter
// textfile collector.
func writeTrainingMetrics(path string, tm *metrics.TrainingMetrics) error {
	reg := prometheus.NewRegistry()
	if err := metrics.RegisterTraining(reg, tm); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}

func printTop(m *weights.Model, n int) {
	top := m.Top(n)
	if len(top) == 0 {
		fmt.Println("All weights are neutral")
		return
	}
	fmt.Printf("\n%-40s %12s %12s\n", "Feature", "log-gamma", "gamma")
	for _, r := range top {
		fmt.Printf("%-40s %12.4f %12.4f\n", r.Name, r.LogGamma, m.Gamma(r.Feature))
	}
}
