package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cwbudde/gradascent/internal/ascent"
)

// stepPrinter writes one line per evaluated point and one per strategy switch.
type stepPrinter struct {
	w            io.Writer
	showStrategy bool
}

func (p *stepPrinter) OnStep(e ascent.StepEvent) {
	if p.showStrategy {
		fmt.Fprintf(p.w, "Step %2d: Point: %s (Strategy: %s), f(p): %.6f\n", e.Step, formatPoint(e.Point), e.Strategy, e.Value)
	} else {
		fmt.Fprintf(p.w, "Step %2d: Point: %s, f(p): %.6f\n", e.Step, formatPoint(e.Point), e.Value)
	}
	if e.Final {
		fmt.Fprintln(p.w, "Reached maximum steps. Final point.")
	}
}

func (p *stepPrinter) OnTransition(t ascent.Transition) {
	fmt.Fprintf(p.w, "Switching strategy: %s -> %s (%s)\n", t.From, t.To, t.Reason)
}

// formatPoint renders a point as [x1, x2, ...] with six decimals.
func formatPoint(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func header(mode ascent.Mode) string {
	if mode == ascent.Dynamic {
		return "--- Recursive Gradient Ascent with Dynamic Strategy Switching ---"
	}
	return "--- Gradient Ascent with Fixed Learning Rate ---"
}
