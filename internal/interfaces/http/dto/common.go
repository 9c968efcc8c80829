package dto

import "strconv"

func itoa(n int) string { return strconv.Itoa(n) }

// WriteResult 写入结果，附带触发的后台任务
type WriteResult struct {
	Entity any      `json:"entity"`
	JobIDs []string `json:"jobIds"`
}

// NewWriteResult 构造写入结果，JobIDs 不为 nil
func NewWriteResult(entity any, jobIDs []string) *WriteResult {
	if jobIDs == nil {
		jobIDs = []string{}
	}
	return &WriteResult{Entity: entity, JobIDs: jobIDs}
}
