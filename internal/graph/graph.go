// Package graph mirrors canonical venues into a Neo4j property graph. The
// mirror is best effort: Postgres stays the source of truth.
package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// VenueNode is the slice of a venue mirrored into the graph.
type VenueNode struct {
	ID           string
	Name         string
	City         string
	Neighborhood string
	Category     venue.Category
	Location     *venue.Point
	Active       bool
}

// NodeFromVenue builds the node for a stored venue.
func NodeFromVenue(v venue.Venue) VenueNode {
	return VenueNode{
		ID:           v.ID,
		Name:         v.Name,
		City:         v.City,
		Neighborhood: v.Neighborhood,
		Category:     v.Category,
		Location:     v.Location,
		Active:       v.Active,
	}
}

// Writer mirrors venues into a graph store.
type Writer interface {
	// Enabled reports whether writes reach a real graph.
	Enabled() bool
	MirrorVenue(ctx context.Context, v VenueNode) error
	Close(ctx context.Context) error
}

// Nop is the Writer used when no graph is configured or reachable.
type Nop struct{}

// Enabled implements Writer.
func (Nop) Enabled() bool { return false }

// MirrorVenue implements Writer.
func (Nop) MirrorVenue(context.Context, VenueNode) error { return nil }

// Close implements Writer.
func (Nop) Close(context.Context) error { return nil }

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
	MaxPool  int
	Timeout  time.Duration
}

// Open connects to Neo4j and verifies connectivity. An empty URI yields
// Nop with no error; an unreachable server yields Nop and the error so the
// caller can log it and carry on.
func Open(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.URI == "" {
		return Nop{}, nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxPool > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPool
		}
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return Nop{}, eris.Wrap(err, "graph: init driver")
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return Nop{}, eris.Wrap(err, "graph: verify connectivity")
	}

	zap.L().Info("graph mirror connected", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return NewNeo4jWriter(driver, cfg.Database), nil
}
