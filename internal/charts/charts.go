// Package charts renders training reports as interactive HTML charts.
package charts

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartConfig holds configuration for charts.
type ChartConfig struct {
	Title    string   // Chart title
	Subtitle string   // Chart subtitle
	Width    string   // Chart width (e.g., "900px")
	Height   string   // Chart height (e.g., "500px")
	Theme    string   // Chart theme
	Smooth   bool     // Smooth lines
	Colors   []string // Series colors, cycled
}

// DefaultChartConfig returns default chart configuration.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:  "900px",
		Height: "500px",
		Theme:  "light",
		Smooth: false,
		Colors: []string{"#5470C6", "#91CC75", "#EE6666", "#FAC858", "#73C0DE", "#3BA272"},
	}
}

// DataPoint represents a single data point in a chart.
type DataPoint struct {
	Label string
	Value float64
}

// SeriesData is a named series of points sharing the first series' labels.
type SeriesData struct {
	Name   string
	Points []DataPoint
}

func (c ChartConfig) color(i int) string {
	if len(c.Colors) == 0 {
		return ""
	}
	return c.Colors[i%len(c.Colors)]
}

func (c ChartConfig) globalOptions(showLegend bool) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width:  c.Width,
			Height: c.Height,
			Theme:  c.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    c.Title,
			Subtitle: c.Subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(showLegend),
		}),
	}
}

// NewLineChart builds a line chart with one line per series.
func NewLineChart(series []SeriesData, config ChartConfig) (*charts.Line, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no data series provided")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(config.globalOptions(len(series) > 1)...)
	line.SetGlobalOptions(charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}))

	xLabels := make([]string, len(series[0].Points))
	for i, point := range series[0].Points {
		xLabels[i] = point.Label
	}
	line.SetXAxis(xLabels)

	for i, s := range series {
		yData := make([]opts.LineData, len(s.Points))
		for j, point := range s.Points {
			yData[j] = opts.LineData{Value: point.Value}
		}
		line.AddSeries(s.Name, yData,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(config.Smooth)}),
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: config.color(i)}),
		)
	}
	return line, nil
}

// NewBarChart builds a bar chart with one bar group per series. Horizontal
// bars suit long labels such as feature names.
func NewBarChart(series []SeriesData, config ChartConfig, horizontal bool) (*charts.Bar, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no data series provided")
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(config.globalOptions(len(series) > 1)...)

	xLabels := make([]string, len(series[0].Points))
	for i, point := range series[0].Points {
		xLabels[i] = point.Label
	}
	bar.SetXAxis(xLabels)

	for i, s := range series {
		yData := make([]opts.BarData, len(s.Points))
		for j, point := range s.Points {
			yData[j] = opts.BarData{Value: point.Value}
		}
		bar.AddSeries(s.Name, yData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: config.color(i)}),
		)
	}
	if horizontal {
		bar.XYReversal()
	}
	return bar, nil
}

// RenderPage writes every chart onto one HTML page.
func RenderPage(w io.Writer, title string, items ...components.Charter) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(items...)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// RenderPageFile writes the page to outputPath, creating its directory.
func RenderPageFile(outputPath, title string, items ...components.Charter) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := RenderPage(f, title, items...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OpenInBrowser opens the given file path in the default web browser.
func OpenInBrowser(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", absPath)
	case "linux":
		cmd = exec.Command("xdg-open", absPath)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
