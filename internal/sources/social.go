package sources

import (
	"context"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// SocialAgent is the placeholder for a social-media signal source. It always
// returns no records.
//
// A real implementation would emit one RawVenue per venue account with the
// account handle as ExternalID, the profile URL as SourceURL and the bio as
// Description, plus a social_heat signal in [0,1] per venue and week.
type SocialAgent struct{}

// NewSocialAgent creates the social placeholder agent.
func NewSocialAgent() *SocialAgent { return &SocialAgent{} }

// Name implements Agent.
func (a *SocialAgent) Name() string { return SourceSocial }

// Capability implements Agent.
func (a *SocialAgent) Capability() Capability { return Enabled() }

// Fetch implements Agent.
func (a *SocialAgent) Fetch(context.Context, venue.City, venue.RunType) ([]venue.RawVenue, error) {
	return nil, nil
}
