// Package pipeline runs one ingestion pass for a city as an explicit fold
// over a fixed list of stages.
package pipeline

import (
	"context"
	"time"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// State is threaded through every stage. Stages return an updated copy.
type State struct {
	Run     *venue.Run
	City    venue.City
	RunType venue.RunType
	Now     time.Time

	Raw        []venue.RawVenue
	Candidates []venue.Candidate
	Existing   []venue.Venue
	Matches    []venue.Match
	// VenueIDs lists every venue written or matched in this run.
	VenueIDs []string

	Stats    venue.Stats
	Errors   []venue.RunError
	Warnings []string
}

func (s *State) addError(stage, source string, kind venue.ErrorKind, msg string, ctx map[string]any) {
	s.Errors = append(s.Errors, venue.RunError{
		Stage:   stage,
		Source:  source,
		Kind:    kind,
		Message: msg,
		Context: ctx,
	})
}

// Stage is one step of the fold.
type Stage interface {
	Name() string
	Run(ctx context.Context, s State) (State, error)
}

// Status derives the final status: FAILED when a stage broke, PARTIAL when
// any error was recorded, SUCCESS otherwise.
func Status(s State, failed bool) venue.RunStatus {
	switch {
	case failed:
		return venue.StatusFailed
	case len(s.Errors) > 0:
		return venue.StatusPartial
	default:
		return venue.StatusSuccess
	}
}
