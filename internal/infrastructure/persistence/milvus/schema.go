package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionNovelVectors 小说内容向量集合，每个命名空间一个分区
	CollectionNovelVectors = "novel_vectors"

	// DefaultDimension 默认向量维度
	DefaultDimension = 1536

	maxContentLength = 65535
)

// 字段名
const (
	fieldID            = "id"
	fieldVector        = "vector"
	fieldNamespace     = "namespace"
	fieldNovelID       = "novel_id"
	fieldEntityType    = "entity_type"
	fieldEntityID      = "entity_id"
	fieldContentType   = "content_type"
	fieldChapterNumber = "chapter_number"
	fieldChunkIndex    = "chunk_index"
	fieldContent       = "content"
)

var outputFields = []string{
	fieldID, fieldNovelID, fieldEntityType, fieldEntityID,
	fieldContentType, fieldChapterNumber, fieldChunkIndex, fieldContent,
}

// NovelVectorsSchema 小说向量 Collection Schema
func NovelVectorsSchema(dim int) *entity.Schema {
	if dim <= 0 {
		dim = DefaultDimension
	}
	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
		}
	}
	id := varchar(fieldID, 256)
	id.PrimaryKey = true
	id.AutoID = false

	return &entity.Schema{
		CollectionName: CollectionNovelVectors,
		Description:    "Novel entities, chapters and documents for semantic search",
		Fields: []*entity.Field{
			id,
			{
				Name:       fieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			varchar(fieldNamespace, 128),
			varchar(fieldNovelID, 128),
			varchar(fieldEntityType, 32),
			varchar(fieldEntityID, 128),
			varchar(fieldContentType, 32),
			{Name: fieldChapterNumber, DataType: entity.FieldTypeInt64},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			varchar(fieldContent, maxContentLength),
		},
	}
}

// PartitionName 将命名空间转换为合法的分区名
func PartitionName(namespace string) string {
	var b strings.Builder
	b.WriteString("ns_")
	for _, r := range namespace {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
