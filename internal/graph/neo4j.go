package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
)

type statement struct {
	cypher string
	params map[string]any
}

const mergeVenueCypher = `
MERGE (c:City {name: $city})
MERGE (v:Venue {id: $id})
SET v += $props
MERGE (v)-[:IN_CITY]->(c)
`

const mergeNeighborhoodCypher = `
MATCH (v:Venue {id: $id})
MERGE (c:City {name: $city})
MERGE (n:Neighborhood {name: $neighborhood, city: $city})
MERGE (n)-[:IN_CITY]->(c)
MERGE (v)-[:IN_NEIGHBORHOOD]->(n)
`

const mergeCategoryCypher = `
MATCH (v:Venue {id: $id})
MERGE (k:Category {name: $category})
MERGE (v)-[:HAS_CATEGORY]->(k)
`

// Neo4jWriter mirrors venues with idempotent MERGE statements.
type Neo4jWriter struct {
	driver   neo4j.DriverWithContext
	database string
	run      func(ctx context.Context, stmts []statement) error
}

// NewNeo4jWriter wraps an open driver. The writer owns the driver and
// closes it in Close.
func NewNeo4jWriter(driver neo4j.DriverWithContext, database string) *Neo4jWriter {
	w := &Neo4jWriter{driver: driver, database: database}
	w.run = w.executeWrite
	return w
}

// Enabled implements Writer.
func (w *Neo4jWriter) Enabled() bool { return true }

// MirrorVenue implements Writer. The venue node, its city, neighborhood and
// category edges are written in one transaction.
func (w *Neo4jWriter) MirrorVenue(ctx context.Context, v VenueNode) error {
	if v.ID == "" {
		return eris.New("graph: venue id is required")
	}
	if err := w.run(ctx, venueStatements(v)); err != nil {
		return eris.Wrapf(err, "graph: mirror venue %s", v.ID)
	}
	return nil
}

// Close implements Writer.
func (w *Neo4jWriter) Close(ctx context.Context) error {
	if w.driver == nil {
		return nil
	}
	err := w.driver.Close(ctx)
	w.driver = nil
	return err
}

func (w *Neo4jWriter) executeWrite(ctx context.Context, stmts []statement) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx) //nolint:errcheck

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			res, err := tx.Run(ctx, s.cypher, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func venueStatements(v VenueNode) []statement {
	props := map[string]any{
		"name":     v.Name,
		"city":     v.City,
		"category": string(v.Category),
		"active":   v.Active,
	}
	if v.Location != nil {
		props["lat"] = v.Location.Lat
		props["lon"] = v.Location.Lon
	}

	stmts := []statement{{
		cypher: mergeVenueCypher,
		params: map[string]any{"id": v.ID, "city": v.City, "props": props},
	}}
	if v.Neighborhood != "" {
		stmts = append(stmts, statement{
			cypher: mergeNeighborhoodCypher,
			params: map[string]any{"id": v.ID, "city": v.City, "neighborhood": v.Neighborhood},
		})
	}
	if v.Category.IsClassified() {
		stmts = append(stmts, statement{
			cypher: mergeCategoryCypher,
			params: map[string]any{"id": v.ID, "category": string(v.Category)},
		})
	}
	return stmts
}
