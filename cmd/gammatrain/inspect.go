package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ramonehamilton/gammatrain/internal/weights"
)

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	var c common
	c.register(fs)
	top := fs.Int("top", 20, "Show this many features and weights")
	runs := fs.Int("runs", 5, "Show this many recent training runs")
	feature := fs.String("feature", "", "Show a single feature")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := c.load()
	if err != nil {
		return err
	}
	model, err := weights.LoadFile(e.cfg.Model.Path, e.registry)
	if err != nil {
		return err
	}

	if *feature != "" {
		idx, ok := e.registry.Lookup(*feature)
		if !ok {
			return fmt.Errorf("unknown feature %q", *feature)
		}
		g := e.registry.Group(idx)
		fmt.Printf("%s: index %d, group %s %v, log-gamma %.6f, gamma %.6f\n",
			*feature, idx, g.Name(), g.Coords(idx), model.LogGamma(idx), model.Gamma(idx))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Registry\t%d features, %d priors\n", e.registry.Size(), len(e.registry.Priors()))
	for _, g := range e.registry.Groups() {
		fmt.Fprintf(w, "  %s\tdims %v\tindices %d..%d\n", g.Name(), g.Dims(), g.Base(), int(g.Base())+g.Size()-1)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Model\t%s\t%d iterations, %d non-neutral weights\n", e.cfg.Model.Path, model.Iterations(), len(model.Top(0)))
	for _, r := range model.Top(*top) {
		fmt.Fprintf(w, "  %s\t%.4f\n", r.Name, r.LogGamma)
	}
	fmt.Fprintln(w)

	if err := inspectDatabase(w, e, *top, *runs); err != nil {
		log.Printf("Database unavailable: %v", err)
	}
	return w.Flush()
}

func inspectDatabase(w *tabwriter.Writer, e *env, top, limit int) error {
	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()
	ctx := context.Background()

	count, err := db.Matches().Count(ctx)
	if err != nil {
		return err
	}
	counts, err := db.Matches().FeatureCounts(ctx, top)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Stored records\t%d\n", count)
	for _, fc := range counts {
		known := ""
		if _, ok := e.registry.Lookup(fc.Feature); !ok {
			known = "(not in registry)"
		}
		fmt.Fprintf(w, "  %s\t%d matches\t%d occurrences\t%s\n", fc.Feature, fc.Matches, fc.Degree, known)
	}
	fmt.Fprintln(w)

	recent, err := db.Runs().List(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Training runs\t%d shown\n", len(recent))
	for _, r := range recent {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d iterations\tll %.4f\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Learner, r.Iterations, r.FinalLogLikelihood, r.Status, took)
	}
	return nil
}
