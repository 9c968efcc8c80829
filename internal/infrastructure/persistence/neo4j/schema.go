package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"novel-orchestrator/pkg/logger"
)

// schemaStatements 唯一约束与名称索引，角色与地点的 ID 只在所属小说内唯一
var schemaStatements = []string{
	`CREATE CONSTRAINT novel_id_unique IF NOT EXISTS FOR (n:Novel) REQUIRE n.id IS UNIQUE`,
	`DROP CONSTRAINT character_id_unique IF EXISTS`,
	`DROP CONSTRAINT location_id_unique IF EXISTS`,
	`CREATE CONSTRAINT character_novel_id_unique IF NOT EXISTS FOR (c:Character) REQUIRE (c.novelId, c.id) IS UNIQUE`,
	`CREATE CONSTRAINT location_novel_id_unique IF NOT EXISTS FOR (l:Location) REQUIRE (l.novelId, l.id) IS UNIQUE`,
	`CREATE CONSTRAINT chapter_novel_number_unique IF NOT EXISTS FOR (c:Chapter) REQUIRE (c.novelId, c.number) IS UNIQUE`,
	`CREATE CONSTRAINT world_state_novel_unique IF NOT EXISTS FOR (w:WorldState) REQUIRE w.novelId IS UNIQUE`,
	`CREATE INDEX novel_title IF NOT EXISTS FOR (n:Novel) ON (n.title)`,
	`CREATE INDEX character_name IF NOT EXISTS FOR (c:Character) ON (c.name)`,
	`CREATE INDEX location_name IF NOT EXISTS FOR (l:Location) ON (l.name)`,
	`CREATE INDEX chapter_title IF NOT EXISTS FOR (c:Chapter) ON (c.title)`,
}

// EnsureSchema 幂等创建约束与索引，已存在的规则不视为错误
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		_, err := c.write(ctx, "EnsureSchema", func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err == nil {
			continue
		}
		if isSchemaAlreadyExists(err) {
			logger.Debug(ctx, "schema rule already exists", "statement", firstLine(stmt))
			continue
		}
		return fmt.Errorf("ensuring schema: %w", err)
	}
	logger.Info(ctx, "graph schema ensured", "statements", len(schemaStatements))
	return nil
}

// isSchemaAlreadyExists 判断是否为规则已存在类错误
func isSchemaAlreadyExists(err error) bool {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch neoErr.Code {
		case "Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists",
			"Neo.ClientError.Schema.ConstraintAlreadyExists",
			"Neo.ClientError.Schema.IndexAlreadyExists":
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
