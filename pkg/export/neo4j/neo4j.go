// Package neo4j writes chapter graphs into a Neo4j database. Nodes are shared
// by all chapters of a novel; relationships belong to the chapter that
// produced them and are replaced on every export of that chapter.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const batchSize = 500

type Exporter struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewExporterParams configures the Neo4j connection.
type NewExporterParams struct {
	URI      string
	User     string
	Password string
	Database string
}

// NewExporter connects to Neo4j and verifies connectivity.
func NewExporter(ctx context.Context, params NewExporterParams) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(params.URI, neo4j.BasicAuth(params.User, params.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}
	return &Exporter{driver: driver, database: params.Database}, nil
}

func (e *Exporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// Export writes doc as the graph of one chapter.
func (e *Exporter) Export(ctx context.Context, novelID, chapterID string, doc common.GraphDocument) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	nodes := nodeRows(doc)
	rels := relationshipRows(doc)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"novel": novelID, "chapter": chapterID}
		if _, err := tx.Run(ctx, deleteChapterRelationships, params); err != nil {
			return nil, fmt.Errorf("failed to clear chapter relationships: %w", err)
		}
		for batch := range slices.Chunk(nodes, batchSize) {
			if _, err := tx.Run(ctx, mergeNodes, map[string]any{"novel": novelID, "rows": batch}); err != nil {
				return nil, fmt.Errorf("failed to merge nodes: %w", err)
			}
		}
		for batch := range slices.Chunk(rels, batchSize) {
			if _, err := tx.Run(ctx, createRelationships, map[string]any{
				"novel":   novelID,
				"chapter": chapterID,
				"rows":    batch,
			}); err != nil {
				return nil, fmt.Errorf("failed to create relationships: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	logger.Info("[Export] chapter written to neo4j",
		"novel", novelID,
		"chapter", chapterID,
		"nodes", len(nodes),
		"relationships", len(rels),
	)
	return nil
}

func nodeRows(doc common.GraphDocument) []map[string]any {
	rows := make([]map[string]any, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		rows = append(rows, map[string]any{
			"id":    n.ID,
			"type":  n.Type,
			"props": neo4jProperties(n.Properties),
		})
	}
	return rows
}

func relationshipRows(doc common.GraphDocument) []map[string]any {
	rows := make([]map[string]any, 0, len(doc.Relationships))
	for _, r := range doc.Relationships {
		rows = append(rows, map[string]any{
			"source": r.SourceID,
			"target": r.TargetID,
			"type":   r.Type,
			"props":  neo4jProperties(r.Properties),
		})
	}
	return rows
}

// neo4jProperties keeps values Neo4j can store as properties and encodes
// everything else as JSON text.
func neo4jProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v := v.(type) {
		case nil:
		case string, bool, int, int32, int64, float32, float64:
			out[k] = v
		case []string:
			out[k] = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = string(data)
		}
	}
	return out
}

const deleteChapterRelationships = `
MATCH (:Entity {novel_id: $novel})-[r:RELATES {chapter_id: $chapter}]->(:Entity {novel_id: $novel})
DELETE r
`

const mergeNodes = `
UNWIND $rows AS row
MERGE (n:Entity {novel_id: $novel, node_id: row.id})
SET n += row.props, n.type = row.type
`

const createRelationships = `
UNWIND $rows AS row
MATCH (a:Entity {novel_id: $novel, node_id: row.source})
MATCH (b:Entity {novel_id: $novel, node_id: row.target})
CREATE (a)-[r:RELATES {chapter_id: $chapter, type: row.type}]->(b)
SET r += row.props
`
