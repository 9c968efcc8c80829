package retrieval

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// VectorID 由实体类型、实体 ID 与可选分片序号确定性生成向量 ID，chunk < 0 表示不分片
func VectorID(entityType, entityID string, chunk int) string {
	if chunk < 0 {
		return entityType + "_" + entityID
	}
	return fmt.Sprintf("%s_%s_%d", entityType, entityID, chunk)
}

// DocumentID 由小说 ID 与文档内容生成稳定的文档 ID，同一文档重复摄入时覆盖旧向量
func DocumentID(novelID, content string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(novelID+"\x00"+strings.TrimSpace(content))).String()
}
