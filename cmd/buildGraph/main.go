package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/i5heu/GoCondQueue/internal/report"
	"github.com/i5heu/GoCondQueue/internal/workload"
)

// occupancy splits samples into push points, pop points and the combined
// step line, with x in seconds since the run started.
type occupancy struct {
	pushes plotter.XYs
	pops   plotter.XYs
	steps  plotter.XYs
}

func buildOccupancy(samples []workload.Sample) occupancy {
	var o occupancy
	for _, s := range samples {
		pt := plotter.XY{X: s.At.Seconds(), Y: float64(s.Used)}
		switch s.Op {
		case "push":
			o.pushes = append(o.pushes, pt)
		case "pop":
			o.pops = append(o.pops, pt)
		}
		// Hold the previous level until this sample so the line reads as a staircase.
		if n := len(o.steps); n > 0 {
			o.steps = append(o.steps, plotter.XY{X: pt.X, Y: o.steps[n-1].Y})
		}
		o.steps = append(o.steps, pt)
	}
	return o
}

func main() {
	jsonFile := flag.String("jsonfile", "run-results.json", "Path to JSON file containing run sessions")
	outputPrefix := flag.String("out", "occupancy", "Output graph image filename prefix")
	flag.Parse()

	sessions, err := report.Load(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	session, err := report.Last(sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	failed := false
	for i, run := range session.Runs {
		p, err := plotRun(run)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error plotting %s: %v\n", run.Implementation, err)
			failed = true
			continue
		}
		filename := fmt.Sprintf("%s_%s_%d.png", *outputPrefix, slug(run.Implementation), i)
		if err := p.Save(12*vg.Inch, 6*vg.Inch, filename); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving plot for %s: %v\n", run.Implementation, err)
			failed = true
			continue
		}
		fmt.Printf("Graph for %s saved to %s\n", run.Implementation, filename)
	}
	if failed {
		os.Exit(1)
	}
}

func plotRun(run report.RunResult) (*plot.Plot, error) {
	occ := buildOccupancy(run.Samples)
	if len(occ.steps) == 0 {
		return nil, fmt.Errorf("run has no samples")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: used slots over time (capacity %d, producer %s, consumer %s)",
		run.Implementation, run.Capacity,
		strings.Join(run.ProducerDelays, "/"), strings.Join(run.ConsumerDelays, "/"))
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Used slots"
	p.Y.Min = 0
	p.Y.Max = float64(run.Capacity) + 1

	// Dark theme.
	p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Title.TextStyle.Color = white
	p.X.Label.TextStyle.Color = white
	p.Y.Label.TextStyle.Color = white
	p.X.Color = white
	p.Y.Color = white
	p.X.Tick.Label.Color = white
	p.Y.Tick.Label.Color = white
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = white

	p.Add(plotter.NewGrid())

	colors := plotutil.SoftColors

	line, err := plotter.NewLine(occ.steps)
	if err != nil {
		return nil, err
	}
	line.Color = colors[0]
	p.Add(line)
	p.Legend.Add("occupancy", line)

	capacity := plotter.NewFunction(func(float64) float64 { return float64(run.Capacity) })
	capacity.Color = colors[1]
	capacity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(capacity)
	p.Legend.Add("capacity", capacity)

	for i, series := range []struct {
		name  string
		pts   plotter.XYs
		shape draw.GlyphDrawer
	}{
		{"push", occ.pushes, draw.TriangleGlyph{}},
		{"pop", occ.pops, draw.CircleGlyph{}},
	} {
		if len(series.pts) == 0 {
			continue
		}
		points, err := plotter.NewScatter(series.pts)
		if err != nil {
			return nil, err
		}
		points.GlyphStyle.Radius = vg.Points(3)
		points.Color = colors[(i+2)%len(colors)]
		points.Shape = series.shape
		p.Add(points)
		p.Legend.Add(series.name, points)
	}
	return p, nil
}

func slug(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
