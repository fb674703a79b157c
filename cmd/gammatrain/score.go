package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ramonehamilton/gammatrain/internal/extract"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

// scoreLine is one output line of the score command.
type scoreLine struct {
	Record int       `json:"record"`
	Scores []float64 `json:"scores"`
	Best   int       `json:"best"`
	Chosen int       `json:"chosen"`
}

func runScore(args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	var c common
	c.register(fs)
	input := fs.String("input", "-", "JSON lines records to score, - for stdin")
	quiet := fs.Bool("quiet", false, "Only print the summary")
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

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	enc := json.NewEncoder(os.Stdout)
	var n, hits int
	logLikelihood := 0.0
	for rec, err := range extract.Records(r) {
		if err != nil {
			return err
		}
		m, _, err := extract.ToMatch(e.fz, rec)
		if err != nil {
			return err
		}
		n++

		teams := make([][]features.Index, len(m.Teams))
		line := scoreLine{Record: n, Scores: make([]float64, len(m.Teams)), Chosen: m.Winner}
		for i, t := range m.Teams {
			teams[i] = t
			line.Scores[i] = model.Score(t)
		}
		line.Best, _ = model.Best(teams)
		if line.Best == line.Chosen {
			hits++
		}
		if line.Chosen >= 0 && line.Chosen < len(line.Scores) {
			logLikelihood += weights.LogProbability(line.Scores, line.Chosen)
		}
		if !*quiet {
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
	}

	if n == 0 {
		fmt.Fprintln(os.Stderr, "No records scored")
		return nil
	}
	fmt.Fprintf(os.Stderr, "Scored %d records: top-1 accuracy %.2f%%, mean log-likelihood %.4f\n",
		n, 100*float64(hits)/float64(n), logLikelihood/float64(n))
	return nil
}
