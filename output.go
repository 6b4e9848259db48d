package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/manningwu07/charRNN/IO"
)

const plotWidth = 100

// asciiPlot draws a crude vertical bar chart of values (0..1).
func asciiPlot(values []float64) {
	const height = 10 // number of text rows
	n := len(values)
	if n == 0 {
		fmt.Println("no data to plot")
		return
	}
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		var b strings.Builder
		for _, v := range values {
			if v >= threshold {
				b.WriteString("█")
			} else {
				b.WriteByte(' ')
			}
		}
		fmt.Println(b.String())
	}
	fmt.Println(strings.Repeat("─", n))
	var axis strings.Builder
	for i := range values {
		if i%5 == 0 {
			axis.WriteString(strconv.Itoa(i % 10))
		} else {
			axis.WriteByte(' ')
		}
	}
	fmt.Println(axis.String())
}

// lossPlot scales losses by their maximum and plots at most plotWidth
// columns, averaging neighbouring samples when there are more.
func lossPlot(losses []float64) {
	cols := downsample(losses, plotWidth)
	mx := 0.0
	for _, v := range cols {
		mx = math.Max(mx, v)
	}
	if mx <= 0 || math.IsNaN(mx) {
		asciiPlot(nil)
		return
	}
	scaled := make([]float64, len(cols))
	for i, v := range cols {
		scaled[i] = v / mx
	}
	fmt.Printf("smoothed loss, max %.4f, %d samples\n", mx, len(losses))
	asciiPlot(scaled)
}

func downsample(values []float64, width int) []float64 {
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		lo := i * len(values) / width
		hi := (i + 1) * len(values) / width
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// printComparison prints two result files side by side.
func printComparison(nameA string, a IO.Results, nameB string, b IO.Results) {
	fmt.Printf("%-8s %-20s %-20s\n", "", nameA, nameB)
	fmt.Printf("%-8s %-20s %-20s\n", "unit", a.Unit, b.Unit)
	n := max(len(a.Losses), len(b.Losses))
	for i := 0; i < n; i++ {
		fmt.Printf("%-8d %-20s %-20s\n", i, lossCell(a.Losses, i), lossCell(b.Losses, i))
	}
	fmt.Printf("%-8s %-20s %-20s\n", "prepare", a.Prepare, b.Prepare)
	fmt.Printf("%-8s %-20s %-20s\n", "loop", a.Loop, b.Loop)
	if a.Loop > 0 && b.Loop > 0 {
		fmt.Printf("loop time ratio %s/%s: %.2fx\n", nameB, nameA, b.Loop.Seconds()/a.Loop.Seconds())
	}
}

func lossCell(losses []float64, i int) string {
	if i >= len(losses) {
		return "-"
	}
	return strconv.FormatFloat(losses[i], 'f', 4, 64)
}
