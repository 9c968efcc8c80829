package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
)

const (
	contextCharacterLimit = 20
	contextLocationLimit  = 10
	contextChapterLimit   = 5
	searchLimit           = 20
)

// searchTargets 可搜索的实体类型，标签与关系来自白名单
var searchTargets = map[string]struct {
	label    string
	relation string
	name     string
	detail   string
}{
	entity.ContentTypeCharacter: {label: "Character", relation: "HAS_CHARACTER", name: "name", detail: "description"},
	entity.ContentTypeLocation:  {label: "Location", relation: "HAS_LOCATION", name: "name", detail: "description"},
	entity.ContentTypeChapter:   {label: "Chapter", relation: "HAS_CHAPTER", name: "title", detail: "summary"},
}

// GraphRepository 基于 Neo4j 的图仓储实现
type GraphRepository struct {
	client *Client
}

// NewGraphRepository 创建图仓储
func NewGraphRepository(client *Client) *GraphRepository {
	return &GraphRepository{client: client}
}

var _ repository.GraphRepository = (*GraphRepository)(nil)

// UpsertNovel 创建或更新小说
func (r *GraphRepository) UpsertNovel(ctx context.Context, novel *entity.Novel) error {
	novel.Normalize()
	query := `
MERGE (n:Novel {id: $id})
ON CREATE SET n.createdAt = $createdAt
SET n.title = $title, n.description = $description, n.genre = $genre,
    n.author = $author, n.status = $status, n.updatedAt = $updatedAt
`
	_, err := r.client.write(ctx, "UpsertNovel", func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, novelProps(novel))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upserting novel: %w", err)
	}
	return nil
}

// UpsertCharacter 创建或更新角色，(novelId, id) 唯一，小说不存在时拒绝写入
func (r *GraphRepository) UpsertCharacter(ctx context.Context, character *entity.Character) error {
	character.Normalize()
	props, err := characterProps(character)
	if err != nil {
		return fmt.Errorf("encoding character: %w", err)
	}
	query := `
MATCH (n:Novel {id: $novelId})
MERGE (c:Character {novelId: $novelId, id: $id})
ON CREATE SET c.createdAt = $createdAt
SET c.name = $name, c.description = $description,
    c.traits = $traits, c.motivations = $motivations, c.powers = $powers,
    c.fears = $fears, c.hiddenDesires = $hiddenDesires, c.affiliations = $affiliations,
    c.trivia = $trivia, c.originJson = $originJson, c.updatedAt = $updatedAt
MERGE (n)-[:HAS_CHARACTER]->(c)
RETURN c.id AS id
`
	return r.upsertOwned(ctx, "UpsertCharacter", query, props)
}

// UpsertLocation 创建或更新地点，(novelId, id) 唯一
func (r *GraphRepository) UpsertLocation(ctx context.Context, location *entity.Location) error {
	location.Normalize()
	query := `
MATCH (n:Novel {id: $novelId})
MERGE (l:Location {novelId: $novelId, id: $id})
ON CREATE SET l.createdAt = $createdAt
SET l.name = $name, l.description = $description,
    l.geography = $geography, l.culture = $culture, l.type = $type, l.updatedAt = $updatedAt
MERGE (n)-[:HAS_LOCATION]->(l)
RETURN l.id AS id
`
	return r.upsertOwned(ctx, "UpsertLocation", query, locationProps(location))
}

// UpsertChapter 创建或更新章节，(novelId, number) 唯一
func (r *GraphRepository) UpsertChapter(ctx context.Context, chapter *entity.Chapter) error {
	chapter.Normalize()
	query := `
MATCH (n:Novel {id: $novelId})
MERGE (c:Chapter {novelId: $novelId, number: $number})
ON CREATE SET c.createdAt = $createdAt
SET c.title = $title, c.content = $content, c.summary = $summary,
    c.wordCount = $wordCount, c.status = $status, c.focusElements = $focusElements,
    c.mood = $mood, c.stylePreference = $stylePreference, c.updatedAt = $updatedAt
MERGE (n)-[:HAS_CHAPTER]->(c)
RETURN c.number AS number
`
	return r.upsertOwned(ctx, "UpsertChapter", query, chapterProps(chapter))
}

// upsertOwned 执行归属于小说的写入，MATCH 无结果即小说不存在
func (r *GraphRepository) upsertOwned(ctx context.Context, op, query string, params map[string]any) error {
	result, err := r.client.write(ctx, op, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return false, err
		}
		found := res.Next(ctx)
		if err := res.Err(); err != nil {
			return false, err
		}
		return found, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(op), err)
	}
	if found, _ := result.(bool); !found {
		return repository.ErrNovelNotFound
	}
	return nil
}

// UpsertWorldState 在同一写事务内读取、浅合并并写回世界状态
func (r *GraphRepository) UpsertWorldState(ctx context.Context, novelID string, patch map[string]any) (*entity.WorldState, error) {
	result, err := r.client.write(ctx, "UpsertWorldState", func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Novel {id: $novelId})
OPTIONAL MATCH (n)-[:HAS_WORLD_STATE]->(w:WorldState)
RETURN w`, map[string]any{"novelId": novelID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, repository.ErrNovelNotFound
		}
		state := entity.NewWorldState(novelID)
		if props, ok := nodeProps(res.Record(), "w"); ok {
			state = worldStateFromProps(props)
			state.NovelID = novelID
		}
		state.Merge(patch)

		encoded, err := encodeJSON(state.State)
		if err != nil {
			return nil, err
		}
		_, err = tx.Run(ctx, `
MATCH (n:Novel {id: $novelId})
MERGE (w:WorldState {novelId: $novelId})
SET w.stateJson = $stateJson, w.updatedAt = $updatedAt
MERGE (n)-[:HAS_WORLD_STATE]->(w)`, map[string]any{
			"novelId":   novelID,
			"stateJson": encoded,
			"updatedAt": toMillis(state.UpdatedAt),
		})
		if err != nil {
			return nil, err
		}
		return state, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNovelNotFound) {
			return nil, repository.ErrNovelNotFound
		}
		return nil, fmt.Errorf("upserting world state: %w", err)
	}
	return result.(*entity.WorldState), nil
}

// GetNovel 获取小说
func (r *GraphRepository) GetNovel(ctx context.Context, novelID string) (*entity.Novel, error) {
	props, err := r.single(ctx, "GetNovel", `MATCH (n:Novel {id: $id}) RETURN n`, map[string]any{"id": novelID})
	if err != nil {
		return nil, err
	}
	return novelFromProps(props), nil
}

// GetCharacter 获取角色
func (r *GraphRepository) GetCharacter(ctx context.Context, novelID, characterID string) (*entity.Character, error) {
	props, err := r.single(ctx, "GetCharacter",
		`MATCH (:Novel {id: $novelId})-[:HAS_CHARACTER]->(n:Character {id: $id}) RETURN n`,
		map[string]any{"novelId": novelID, "id": characterID})
	if err != nil {
		return nil, err
	}
	return characterFromProps(props), nil
}

// GetLocation 获取地点
func (r *GraphRepository) GetLocation(ctx context.Context, novelID, locationID string) (*entity.Location, error) {
	props, err := r.single(ctx, "GetLocation",
		`MATCH (:Novel {id: $novelId})-[:HAS_LOCATION]->(n:Location {id: $id}) RETURN n`,
		map[string]any{"novelId": novelID, "id": locationID})
	if err != nil {
		return nil, err
	}
	return locationFromProps(props), nil
}

// GetChapter 获取章节
func (r *GraphRepository) GetChapter(ctx context.Context, novelID string, number int) (*entity.Chapter, error) {
	props, err := r.single(ctx, "GetChapter",
		`MATCH (:Novel {id: $novelId})-[:HAS_CHAPTER]->(n:Chapter {number: $number}) RETURN n`,
		map[string]any{"novelId": novelID, "number": int64(number)})
	if err != nil {
		return nil, err
	}
	return chapterFromProps(props), nil
}

// GetWorldState 获取世界状态，不存在时返回 ErrNotFound
func (r *GraphRepository) GetWorldState(ctx context.Context, novelID string) (*entity.WorldState, error) {
	props, err := r.single(ctx, "GetWorldState",
		`MATCH (:Novel {id: $novelId})-[:HAS_WORLD_STATE]->(n:WorldState) RETURN n`,
		map[string]any{"novelId": novelID})
	if err != nil {
		return nil, err
	}
	return worldStateFromProps(props), nil
}

// single 读取单个节点
func (r *GraphRepository) single(ctx context.Context, op, query string, params map[string]any) (map[string]any, error) {
	result, err := r.client.read(ctx, op, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var props map[string]any
		if res.Next(ctx) {
			props, _ = nodeProps(res.Record(), "n")
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return props, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToLower(op), err)
	}
	props, _ := result.(map[string]any)
	if props == nil {
		return nil, repository.ErrNotFound
	}
	return props, nil
}

// GetContext 聚合小说、角色、地点、近期章节和世界状态
// chapterNumber > 0 时只取该章之前的章节
func (r *GraphRepository) GetContext(ctx context.Context, novelID string, chapterNumber int) (*entity.GraphContext, error) {
	result, err := r.client.read(ctx, "GetContext", func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{
			"novelId":        novelID,
			"before":         int64(chapterNumber),
			"characterLimit": int64(contextCharacterLimit),
			"locationLimit":  int64(contextLocationLimit),
			"chapterLimit":   int64(contextChapterLimit),
		}

		novels, err := collectNodes(ctx, tx, `MATCH (n:Novel {id: $novelId}) RETURN n`, params)
		if err != nil {
			return nil, err
		}
		if len(novels) == 0 {
			return nil, repository.ErrNovelNotFound
		}
		gc := &entity.GraphContext{
			Novel:      novelFromProps(novels[0]),
			Characters: []*entity.Character{},
			Locations:  []*entity.Location{},
			Chapters:   []*entity.Chapter{},
		}

		characters, err := collectNodes(ctx, tx, `
MATCH (:Novel {id: $novelId})-[:HAS_CHARACTER]->(n:Character)
RETURN n ORDER BY n.updatedAt DESC LIMIT $characterLimit`, params)
		if err != nil {
			return nil, err
		}
		for _, p := range characters {
			gc.Characters = append(gc.Characters, characterFromProps(p))
		}

		locations, err := collectNodes(ctx, tx, `
MATCH (:Novel {id: $novelId})-[:HAS_LOCATION]->(n:Location)
RETURN n ORDER BY n.updatedAt DESC LIMIT $locationLimit`, params)
		if err != nil {
			return nil, err
		}
		for _, p := range locations {
			gc.Locations = append(gc.Locations, locationFromProps(p))
		}

		chapters, err := collectNodes(ctx, tx, `
MATCH (:Novel {id: $novelId})-[:HAS_CHAPTER]->(n:Chapter)
WHERE $before <= 0 OR n.number < $before
RETURN n ORDER BY n.number DESC LIMIT $chapterLimit`, params)
		if err != nil {
			return nil, err
		}
		for i := len(chapters) - 1; i >= 0; i-- {
			gc.Chapters = append(gc.Chapters, chapterFromProps(chapters[i]))
		}

		states, err := collectNodes(ctx, tx, `
MATCH (:Novel {id: $novelId})-[:HAS_WORLD_STATE]->(n:WorldState) RETURN n`, params)
		if err != nil {
			return nil, err
		}
		if len(states) > 0 {
			gc.WorldState = worldStateFromProps(states[0])
		} else {
			gc.WorldState = entity.NewWorldState(novelID)
		}
		return gc, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNovelNotFound) {
			return nil, repository.ErrNovelNotFound
		}
		return nil, fmt.Errorf("getting context: %w", err)
	}
	return result.(*entity.GraphContext), nil
}

// GetChapterSequence 按章节号升序返回章节
func (r *GraphRepository) GetChapterSequence(ctx context.Context, novelID string, limit int) ([]*entity.Chapter, error) {
	if limit <= 0 {
		limit = 100
	}
	result, err := r.client.read(ctx, "GetChapterSequence", func(tx neo4j.ManagedTransaction) (any, error) {
		return collectNodes(ctx, tx, `
MATCH (:Novel {id: $novelId})-[:HAS_CHAPTER]->(n:Chapter)
RETURN n ORDER BY n.number ASC LIMIT $limit`, map[string]any{"novelId": novelID, "limit": int64(limit)})
	})
	if err != nil {
		return nil, fmt.Errorf("getting chapter sequence: %w", err)
	}
	nodes := result.([]map[string]any)
	chapters := make([]*entity.Chapter, 0, len(nodes))
	for _, p := range nodes {
		chapters = append(chapters, chapterFromProps(p))
	}
	return chapters, nil
}

// SearchEntities 按名称或描述做大小写不敏感的子串匹配
func (r *GraphRepository) SearchEntities(ctx context.Context, novelID, text string, types []string) ([]entity.EntityMatch, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []entity.EntityMatch{}, nil
	}
	types = normalizeSearchTypes(types)

	result, err := r.client.read(ctx, "SearchEntities", func(tx neo4j.ManagedTransaction) (any, error) {
		matches := make([]entity.EntityMatch, 0)
		for _, t := range types {
			remaining := searchLimit - len(matches)
			if remaining <= 0 {
				break
			}
			res, err := tx.Run(ctx, searchQuery(t), map[string]any{
				"novelId": novelID,
				"q":       strings.ToLower(text),
				"limit":   int64(remaining),
			})
			if err != nil {
				return nil, err
			}
			for res.Next(ctx) {
				rec := res.Record()
				id, _ := rec.Get("id")
				name, _ := rec.Get("name")
				detail, _ := rec.Get("detail")
				matches = append(matches, entity.EntityMatch{
					Type:        t,
					ID:          toEntityID(id),
					Name:        toString(name),
					Description: toString(detail),
				})
			}
			if err := res.Err(); err != nil {
				return nil, err
			}
		}
		return matches, nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching entities: %w", err)
	}
	return result.([]entity.EntityMatch), nil
}

// searchQuery 构造搜索语句，t 必须来自 searchTargets
func searchQuery(t string) string {
	target := searchTargets[t]
	id := "e.id"
	if t == entity.ContentTypeChapter {
		id = "e.number"
	}
	return fmt.Sprintf(`
MATCH (:Novel {id: $novelId})-[:%s]->(e:%s)
WHERE toLower(coalesce(e.%s, '')) CONTAINS $q OR toLower(coalesce(e.%s, '')) CONTAINS $q
RETURN %s AS id, e.%s AS name, e.%s AS detail
LIMIT $limit`, target.relation, target.label, target.name, target.detail, id, target.name, target.detail)
}

// normalizeSearchTypes 过滤未知类型，为空时搜索全部
func normalizeSearchTypes(types []string) []string {
	out := make([]string, 0, len(searchTargets))
	seen := make(map[string]bool)
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := searchTargets[t]; ok && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, entity.ContentTypeCharacter, entity.ContentTypeLocation, entity.ContentTypeChapter)
	}
	return out
}

func toEntityID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return fmt.Sprintf("%d", id)
	}
	return ""
}

// collectNodes 执行查询并收集列 n 的节点属性
func collectNodes(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0)
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "n"); ok {
			out = append(out, props)
		}
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNovel 删除小说及其拥有的全部节点
func (r *GraphRepository) DeleteNovel(ctx context.Context, novelID string) error {
	_, err := r.client.write(ctx, "DeleteNovel", func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MATCH (n:Novel {id: $novelId})
OPTIONAL MATCH (n)-[]->(owned)
DETACH DELETE owned, n`, map[string]any{"novelId": novelID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("deleting novel: %w", err)
	}
	return nil
}

// ping 供就绪检查使用的轻量查询
func (r *GraphRepository) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.client.read(ctx, "Ping", func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "RETURN 1", nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// HealthCheck 健康检查
func (r *GraphRepository) HealthCheck(ctx context.Context) error {
	return r.ping(ctx)
}
