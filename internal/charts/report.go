package charts

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/components"

	"github.com/ramonehamilton/gammatrain/internal/strength"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

// Report is what a training run produced.
type Report struct {
	Title   string
	History []strength.PassStats
	Top     []weights.Ranked
}

// LikelihoodSeries converts pass history into a log-likelihood series.
func LikelihoodSeries(history []strength.PassStats) SeriesData {
	s := SeriesData{Name: "Log-likelihood", Points: make([]DataPoint, len(history))}
	for i, p := range history {
		s.Points[i] = DataPoint{Label: strconv.Itoa(p.Pass), Value: p.LogLikelihood}
	}
	return s
}

// StepSeries converts pass history into accepted and rejected update counts.
func StepSeries(history []strength.PassStats) []SeriesData {
	accepted := SeriesData{Name: "Accepted", Points: make([]DataPoint, len(history))}
	rejected := SeriesData{Name: "Rejected", Points: make([]DataPoint, len(history))}
	for i, p := range history {
		label := strconv.Itoa(p.Pass)
		accepted.Points[i] = DataPoint{Label: label, Value: float64(p.Accepted)}
		rejected.Points[i] = DataPoint{Label: label, Value: float64(p.Rejected)}
	}
	return []SeriesData{accepted, rejected}
}

// WeightSeries converts ranked weights into a log-gamma series.
func WeightSeries(top []weights.Ranked) SeriesData {
	s := SeriesData{Name: "Log-gamma", Points: make([]DataPoint, len(top))}
	for i, r := range top {
		s.Points[i] = DataPoint{Label: r.Name, Value: r.LogGamma}
	}
	return s
}

func (r Report) charts(config ChartConfig) ([]components.Charter, error) {
	var items []components.Charter

	if len(r.History) > 0 {
		lc := config
		lc.Title = "Log-likelihood per pass"
		lc.Subtitle = fmt.Sprintf("%d passes", len(r.History))
		line, err := NewLineChart([]SeriesData{LikelihoodSeries(r.History)}, lc)
		if err != nil {
			return nil, err
		}
		items = append(items, line)

		sc := config
		sc.Title = "Coordinate updates per pass"
		bar, err := NewBarChart(StepSeries(r.History), sc, false)
		if err != nil {
			return nil, err
		}
		items = append(items, bar)
	}

	if len(r.Top) > 0 {
		wc := config
		wc.Title = "Strongest features"
		wc.Subtitle = "by absolute log-gamma"
		bar, err := NewBarChart([]SeriesData{WeightSeries(r.Top)}, wc, true)
		if err != nil {
			return nil, err
		}
		items = append(items, bar)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("report has nothing to chart")
	}
	return items, nil
}

// Render writes the report page to w.
func (r Report) Render(w io.Writer, config ChartConfig) error {
	items, err := r.charts(config)
	if err != nil {
		return err
	}
	return RenderPage(w, r.Title, items...)
}

// RenderFile writes the report page to outputPath.
func (r Report) RenderFile(outputPath string, config ChartConfig) error {
	items, err := r.charts(config)
	if err != nil {
		return err
	}
	return RenderPageFile(outputPath, r.Title, items...)
}
