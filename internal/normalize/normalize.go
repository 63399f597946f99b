// Package normalize groups raw source records that describe the same place
// and merges each group into a single candidate.
package normalize

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/geo"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Locator resolves a point to a neighborhood name.
type Locator interface {
	Lookup(p venue.Point) (string, bool)
}

// Result is the output of one normalization pass.
type Result struct {
	Candidates         []venue.Candidate
	Skipped            int
	CoordinateCoverage float64
	CategoryCoverage   float64
	WebsiteCoverage    float64
}

// Normalizer merges raw records for one city.
type Normalizer struct {
	city    venue.City
	locator Locator
}

// New returns a Normalizer for city. locator may be nil.
func New(city venue.City, locator Locator) *Normalizer {
	return &Normalizer{city: city, locator: locator}
}

type group struct {
	name    string
	cell    string
	records []venue.RawVenue
}

// Normalize groups raws by normalized name and coarse geo cell, then merges
// each group. Output order follows the first appearance of each group.
func (n *Normalizer) Normalize(raws []venue.RawVenue) Result {
	log := zap.L().With(zap.String("component", "normalize"), zap.String("city", n.city.Name))

	var res Result
	groups := n.group(raws, &res.Skipped)

	for _, g := range groups {
		c := n.merge(g.records)
		n.backfillNeighborhood(&c)
		res.Candidates = append(res.Candidates, c)
	}

	res.CoordinateCoverage, res.CategoryCoverage, res.WebsiteCoverage = coverage(res.Candidates)

	log.Info("normalized raw venues",
		zap.Int("raw", len(raws)),
		zap.Int("skipped", res.Skipped),
		zap.Int("candidates", len(res.Candidates)),
		zap.Float64("coordinate_coverage", res.CoordinateCoverage),
	)
	return res
}

// group buckets records by (normalized name, cell). Same-name cells holding
// records within SameVenueMeters are joined, and a no-coordinate group is
// folded into the same-name group that has coordinates when exactly one exists.
func (n *Normalizer) group(raws []venue.RawVenue, skipped *int) []*group {
	byKey := make(map[string]*group)
	var order []*group

	for _, r := range raws {
		name := Name(r.Name)
		if name == "" {
			*skipped++
			continue
		}
		if !geo.ValidPoint(r.Location) {
			r.Location = nil
		}
		cell := geo.Cell(r.Location)
		key := name + "|" + cell
		g, ok := byKey[key]
		if !ok {
			g = &group{name: name, cell: cell}
			byKey[key] = g
			order = append(order, g)
		}
		g.records = append(g.records, r)
	}

	order = mergeNearby(order)

	withGeo := make(map[string][]*group)
	for _, g := range order {
		if g.cell != geo.NoGeoCell {
			withGeo[g.name] = append(withGeo[g.name], g)
		}
	}

	out := order[:0]
	for _, g := range order {
		if g.cell == geo.NoGeoCell {
			if targets := withGeo[g.name]; len(targets) == 1 {
				targets[0].records = append(targets[0].records, g.records...)
				continue
			}
		}
		out = append(out, g)
	}
	return out
}

// SameVenueMeters is the distance under which two same-name records are
// always the same place, whichever cells they fall in.
const SameVenueMeters = 100.0

// mergeNearby joins same-name groups that have any pair of records within
// SameVenueMeters. Joins are transitive; each merged group keeps the position
// of its earliest member.
func mergeNearby(order []*group) []*group {
	byName := make(map[string][]int)
	for i, g := range order {
		if g.cell != geo.NoGeoCell {
			byName[g.name] = append(byName[g.name], i)
		}
	}

	parent := make([]int, len(order))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for _, idx := range byName {
		for a := 0; a < len(idx); a++ {
			for b := a + 1; b < len(idx); b++ {
				if !near(order[idx[a]], order[idx[b]]) {
					continue
				}
				ra, rb := find(idx[a]), find(idx[b])
				if ra == rb {
					continue
				}
				if ra < rb {
					parent[rb] = ra
				} else {
					parent[ra] = rb
				}
			}
		}
	}

	out := make([]*group, 0, len(order))
	for i, g := range order {
		if root := find(i); root != i {
			order[root].records = append(order[root].records, g.records...)
			continue
		}
		out = append(out, g)
	}
	return out
}

func near(a, b *group) bool {
	for _, ra := range a.records {
		for _, rb := range b.records {
			if ra.Location != nil && rb.Location != nil && geo.DistanceMeters(*ra.Location, *rb.Location) <= SameVenueMeters {
				return true
			}
		}
	}
	return false
}

// merge folds one group into a candidate. Records are ranked by confidence;
// the top record supplies the display name.
func (n *Normalizer) merge(records []venue.RawVenue) venue.Candidate {
	ranked := make([]venue.RawVenue, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })

	base := ranked[0]
	c := venue.Candidate{
		Name:           DisplayName(base.Name),
		NormalizedName: Name(base.Name),
		City:           n.city.Name,
		Active:         true,
		Sources:        ranked,
	}

	var (
		latSum, lonSum float64
		located        int
		tags           []string
		prices         []*int
	)
	for _, r := range ranked {
		if r.Location != nil {
			latSum += r.Location.Lat
			lonSum += r.Location.Lon
			located++
		}
		c.Address = firstNonEmpty(c.Address, r.Address)
		c.Neighborhood = firstNonEmpty(c.Neighborhood, r.Neighborhood)
		c.Website = firstNonEmpty(c.Website, r.Website)
		c.Phone = firstNonEmpty(c.Phone, r.Phone)
		c.Hours = firstNonEmpty(c.Hours, r.Hours)
		c.ImageURL = firstNonEmpty(c.ImageURL, r.ImageURL)
		if len(r.Description) > len(c.Description) {
			c.Description = r.Description
		}
		if r.Capacity != nil && (c.Capacity == nil || *r.Capacity > *c.Capacity) {
			v := *r.Capacity
			c.Capacity = &v
		}
		if c.Rating == nil && r.Rating != nil {
			v := *r.Rating
			c.Rating = &v
		}
		if r.ReviewCount != nil && (c.ReviewCount == nil || *r.ReviewCount > *c.ReviewCount) {
			v := *r.ReviewCount
			c.ReviewCount = &v
		}
		for k, v := range r.Accessibility {
			if c.Accessibility == nil {
				c.Accessibility = make(map[string]bool)
			}
			c.Accessibility[k] = c.Accessibility[k] || v
		}
		if r.Closed {
			c.Active = false
		}
		tags = append(tags, r.Tags...)
		prices = append(prices, r.PriceLevel)
	}

	if located > 0 {
		c.Location = &venue.Point{Lat: latSum / float64(located), Lon: lonSum / float64(located)}
	}
	c.GeoCell = geo.Cell(c.Location)
	c.Category, c.Subcategories = venue.ResolveCategory(tags)
	c.PriceBand = venue.MapPrice(venue.AveragePriceLevel(prices))
	c.Aliases = aliases(c.NormalizedName, ranked)
	return c
}

// aliases collects every other name and alias seen in the group, deduplicated
// by normalized form and excluding the canonical name.
func aliases(canonical string, ranked []venue.RawVenue) []string {
	seen := map[string]bool{canonical: true}
	var out []string
	add := func(s string) {
		key := Name(s)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, DisplayName(s))
	}
	for _, r := range ranked {
		add(r.Name)
		for _, a := range r.Aliases {
			add(a)
		}
	}
	return out
}

func (n *Normalizer) backfillNeighborhood(c *venue.Candidate) {
	if c.Neighborhood == "" && c.Location != nil && n.locator != nil {
		if name, ok := n.locator.Lookup(*c.Location); ok {
			c.Neighborhood = name
		}
	}
	if c.Neighborhood == "" && len(n.city.Neighborhoods) == 1 {
		c.Neighborhood = n.city.Neighborhoods[0]
	}
}

func coverage(cands []venue.Candidate) (coords, category, website float64) {
	if len(cands) == 0 {
		return 0, 0, 0
	}
	var nc, ncat, nweb int
	for _, c := range cands {
		if c.Location != nil {
			nc++
		}
		if c.Category.IsClassified() {
			ncat++
		}
		if strings.TrimSpace(c.Website) != "" {
			nweb++
		}
	}
	total := float64(len(cands))
	return float64(nc) / total, float64(ncat) / total, float64(nweb) / total
}

func firstNonEmpty(current, next string) string {
	if current != "" {
		return current
	}
	return strings.TrimSpace(next)
}
