// Package neo4j 提供图数据库（权威存储）的访问实现
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("neo4j")

// Client Neo4j 客户端
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewClient 创建 Neo4j 客户端
// 启动时无法连通只记录警告，驱动会在首次使用时重新建连
func NewClient(ctx context.Context, cfg *config.Neo4jConfig) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4jconfig.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectTimeout > 0 {
				c.SocketConnectTimeout = cfg.ConnectTimeout
			}
		})
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		logger.Warn(ctx, "neo4j unreachable at startup, continuing in degraded mode",
			"uri", cfg.URI, "error", err.Error())
	}

	return &Client{driver: driver, database: cfg.Database}, nil
}

// Close 关闭驱动
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "neo4j.HealthCheck")
	defer span.End()

	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: mode})
}

// write 在写事务中执行
func (c *Client) write(ctx context.Context, op string, fn neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracer.Start(ctx, "neo4j."+op,
		trace.WithAttributes(attribute.String("db.system", "neo4j"), attribute.String("db.operation", op)))
	defer span.End()
	start := time.Now()
	defer func() { metrics.GraphQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, fn)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// read 在读事务中执行
func (c *Client) read(ctx context.Context, op string, fn neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracer.Start(ctx, "neo4j."+op,
		trace.WithAttributes(attribute.String("db.system", "neo4j"), attribute.String("db.operation", op)))
	defer span.End()
	start := time.Now()
	defer func() { metrics.GraphQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, fn)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}
