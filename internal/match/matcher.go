package match

import (
	"math"

	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

const scoreEpsilon = 1e-9

// Result is the outcome of matching one batch.
type Result struct {
	Matches   []venue.Match
	Matched   int
	New       int
	Ambiguous int
}

// Matcher scores candidates against a fixed set of canonical venues.
type Matcher struct {
	threshold float64
	existing  []Profile
}

// New indexes the active venues of a city. A threshold <= 0 uses DefaultThreshold.
func New(existing []venue.Venue, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m := &Matcher{threshold: threshold, existing: make([]Profile, 0, len(existing))}
	for _, v := range existing {
		m.existing = append(m.existing, VenueProfile(v))
	}
	return m
}

// Match resolves every candidate. The best-scoring venue at or above the
// threshold wins; equal scores go to the nearer venue, then the smaller id.
func (m *Matcher) Match(cands []venue.Candidate) Result {
	log := zap.L().With(zap.String("component", "match"))

	res := Result{Matches: make([]venue.Match, 0, len(cands))}
	for _, c := range cands {
		best, bestScore, tied := m.best(CandidateProfile(c))

		if best == nil || bestScore < m.threshold {
			res.New++
			res.Matches = append(res.Matches, venue.Match{Candidate: c, Confidence: math.Max(bestScore, 0)})
			continue
		}
		if tied > 1 {
			res.Ambiguous++
			log.Warn("ambiguous match resolved by tie-break",
				zap.String("candidate", c.Name),
				zap.String("venue_id", best.ID),
				zap.Int("tied", tied),
				zap.Float64("score", bestScore),
			)
		}
		res.Matched++
		res.Matches = append(res.Matches, venue.Match{Candidate: c, VenueID: best.ID, Confidence: bestScore})
	}
	return res
}

// best returns the winning profile, its score and how many venues shared
// that score.
func (m *Matcher) best(p Profile) (*Profile, float64, int) {
	var (
		winner   *Profile
		winScore = -1.0
		winDist  = math.Inf(1)
		tied     int
	)
	for i := range m.existing {
		e := &m.existing[i]
		bd := Score(p, *e)

		switch {
		case winner == nil || bd.Total > winScore+scoreEpsilon:
			winner, winScore, winDist, tied = e, bd.Total, bd.Distance, 1
		case math.Abs(bd.Total-winScore) <= scoreEpsilon:
			tied++
			if bd.Distance < winDist || (bd.Distance == winDist && e.ID < winner.ID) {
				winner, winDist = e, bd.Distance
			}
		}
	}
	return winner, winScore, tied
}
