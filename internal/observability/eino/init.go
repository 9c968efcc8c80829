package eino

import (
	"sync"
	"sync/atomic"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var (
	initOnce   sync.Once
	registered atomic.Bool
)

// Handler 组合对话模型与向量化回调
func Handler() einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Embedding(newEmbeddingCallbackHandler()).
		Handler()
}

// Init 进程内只注册一次全局回调，extra 追加在默认回调之后
func Init(extra ...einocallbacks.Handler) {
	initOnce.Do(func() {
		handlers := append([]einocallbacks.Handler{Handler()}, extra...)
		einocallbacks.AppendGlobalHandlers(handlers...)
		registered.Store(true)
	})
}

// Registered 全局回调是否已注册
func Registered() bool {
	return registered.Load()
}
