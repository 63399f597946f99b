// Package quality compares a run's statistics with the city's previous
// successful run and flags drops in source output.
package quality

import (
	"fmt"
	"sort"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Thresholds.
const (
	MinRawTotalRatio      = 0.5
	MinCoordinateCoverage = 0.5
	MinCategoryCoverage   = 0.7
	MinWebsiteCoverage    = 0.3
)

// Stage is the stage name recorded on anomalies.
const Stage = "quality"

// Report holds the outcome of one check.
type Report struct {
	// Anomalies become run errors and downgrade the run to PARTIAL.
	Anomalies []venue.RunError
	// Warnings are logged only.
	Warnings []string
}

// Check evaluates current against previous. A nil previous (first run for
// the city) skips the comparison checks.
func Check(current venue.Stats, previous *venue.Stats) Report {
	var r Report

	if previous != nil {
		names := make([]string, 0, len(previous.SourceCounts))
		for name := range previous.SourceCounts {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			before := previous.SourceCounts[name]
			if before > 0 && current.SourceCounts[name] == 0 {
				r.Anomalies = append(r.Anomalies, venue.RunError{
					Stage:   Stage,
					Source:  name,
					Kind:    venue.ErrQualityAnomaly,
					Message: fmt.Sprintf("source %s returned 0 records, previous run returned %d", name, before),
					Context: map[string]any{"previous": before, "current": 0},
				})
			}
		}

		if previous.RawTotal > 0 && float64(current.RawTotal) < MinRawTotalRatio*float64(previous.RawTotal) {
			r.Anomalies = append(r.Anomalies, venue.RunError{
				Stage:   Stage,
				Kind:    venue.ErrQualityAnomaly,
				Message: fmt.Sprintf("raw total dropped to %d from %d", current.RawTotal, previous.RawTotal),
				Context: map[string]any{"previous": previous.RawTotal, "current": current.RawTotal},
			})
		}
	}

	if current.NormalizedTotal > 0 {
		for _, c := range []struct {
			name  string
			value float64
			min   float64
		}{
			{"coordinate", current.CoordinateCoverage, MinCoordinateCoverage},
			{"category", current.CategoryCoverage, MinCategoryCoverage},
			{"website", current.WebsiteCoverage, MinWebsiteCoverage},
		} {
			if c.value < c.min {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s coverage %.0f%% is below %.0f%%", c.name, c.value*100, c.min*100))
			}
		}
	}

	return r
}
