package IO

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Results is the flat loss/timing log of one benchmark run.
type Results struct {
	Unit    string    // reporting unit, e.g. "100 iteration"
	Losses  []float64 // smoothed loss samples, chronological
	Prepare time.Duration
	Loop    time.Duration
}

const (
	unitPrefix    = "unit: "
	runTimePrefix = "run time: "
)

// WriteResults writes
//
//	unit: <unit>
//	<loss>
//	...
//	run time: <prepare seconds> <loop seconds>
func WriteResults(path string, r Results) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s%s\n", unitPrefix, r.Unit)
	for _, l := range r.Losses {
		fmt.Fprintln(w, strconv.FormatFloat(l, 'g', -1, 64))
	}
	fmt.Fprintf(w, "%s%s %s\n", runTimePrefix,
		strconv.FormatFloat(r.Prepare.Seconds(), 'f', -1, 64),
		strconv.FormatFloat(r.Loop.Seconds(), 'f', -1, 64))
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ReadResults parses a file written by WriteResults (or by the reference
// Python scripts, which share the format).
func ReadResults(path string) (Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return Results{}, err
	}
	defer f.Close()

	var r Results
	sc := bufio.NewScanner(f)
	lineNum := 0
	sawTimes := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		lineNum++
		switch {
		case line == "":
			continue
		case lineNum == 1:
			if !strings.HasPrefix(line, unitPrefix) {
				return Results{}, fmt.Errorf("%s:%d: missing %q header", path, lineNum, strings.TrimSpace(unitPrefix))
			}
			r.Unit = strings.TrimPrefix(line, unitPrefix)
		case strings.HasPrefix(line, runTimePrefix):
			fields := strings.Fields(strings.TrimPrefix(line, runTimePrefix))
			if len(fields) != 2 {
				return Results{}, fmt.Errorf("%s:%d: want two timings, got %q", path, lineNum, line)
			}
			prep, err := parseSeconds(fields[0])
			if err != nil {
				return Results{}, fmt.Errorf("%s:%d: %w", path, lineNum, err)
			}
			loop, err := parseSeconds(fields[1])
			if err != nil {
				return Results{}, fmt.Errorf("%s:%d: %w", path, lineNum, err)
			}
			r.Prepare, r.Loop = prep, loop
			sawTimes = true
		default:
			v, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return Results{}, fmt.Errorf("%s:%d: %w", path, lineNum, err)
			}
			r.Losses = append(r.Losses, v)
		}
	}
	if err := sc.Err(); err != nil {
		return Results{}, err
	}
	if !sawTimes {
		return Results{}, fmt.Errorf("%s: missing run time line", path)
	}
	return r, nil
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}
