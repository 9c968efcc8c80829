// Package milvus 基于 Milvus 的向量存储，每个命名空间映射为一个分区
package milvus

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/config"
)

var tracer = otel.Tracer("milvus")

const connectTimeout = 10 * time.Second

// Client 持有 Milvus 连接，索引与检索参数来自 cfg
type Client struct {
	milvus client.Client
	cfg    *config.MilvusConfig
}

// NewClient 连接 Milvus，user 与 password 同时配置时启用认证
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	conf := client.Config{Address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}
	if cfg.User != "" && cfg.Password != "" {
		conf.Username, conf.Password = cfg.User, cfg.Password
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	mc, err := client.NewClient(dialCtx, conf)
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", conf.Address, err)
	}
	return &Client{milvus: mc, cfg: cfg}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// CollectionName 加上配置的前缀
func (c *Client) CollectionName(name string) string {
	if c.cfg.CollectionPrefix == "" {
		return name
	}
	return c.cfg.CollectionPrefix + "_" + name
}

// HealthCheck 以查询向量集合是否存在作为探活
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.HasCollection(ctx, CollectionNovelVectors)
	if err != nil {
		return fmt.Errorf("milvus health check: %w", err)
	}
	return nil
}

// HasCollection 集合是否存在
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	full := c.CollectionName(name)
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", full)))
	defer span.End()

	ok, err := c.milvus.HasCollection(ctx, full)
	if err != nil {
		span.RecordError(err)
	}
	return ok, err
}

// LoadCollection 把集合加载进查询节点
func (c *Client) LoadCollection(ctx context.Context, name string) error {
	full := c.CollectionName(name)
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", full)))
	defer span.End()

	if err := c.milvus.LoadCollection(ctx, full, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("load collection %s: %w", full, err)
	}
	return nil
}
