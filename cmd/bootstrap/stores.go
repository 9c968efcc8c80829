package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/infrastructure/persistence/milvus"
	"novel-orchestrator/internal/infrastructure/persistence/neo4j"
	"novel-orchestrator/internal/infrastructure/persistence/qdrant"
	"novel-orchestrator/pkg/logger"
)

const provisionTimeout = 2 * time.Minute

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return cfg, nil
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create graph constraints and indexes (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), provisionTimeout)
			defer cancel()
			return runSchema(ctx, cfg)
		},
	}
}

func runSchema(ctx context.Context, cfg *config.Config) error {
	client, err := neo4j.NewClient(ctx, &cfg.Graph.Neo4j)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()

	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("neo4j unreachable: %w", err)
	}
	if err := client.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "graph schema ensured", "uri", cfg.Graph.Neo4j.URI)
	return nil
}

func collectionsCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Create the vector collection and index for the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(backend) != "" {
				cfg.Vector.Backend = backend
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), provisionTimeout)
			defer cancel()
			return runCollections(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Vector backend override (milvus|qdrant)")
	return cmd
}

func runCollections(ctx context.Context, cfg *config.Config) error {
	dim := cfg.Embedding.Dimension
	switch strings.ToLower(strings.TrimSpace(cfg.Vector.Backend)) {
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := milvus.NewRepository(client, dim).EnsureCollection(ctx); err != nil {
			return err
		}
	case "qdrant":
		repo, err := qdrant.NewRepository(&cfg.Vector.Qdrant, dim)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		if err := repo.EnsureCollection(ctx); err != nil {
			return err
		}
	case "", "none":
		return fmt.Errorf("no vector backend configured")
	default:
		return fmt.Errorf("unknown vector backend: %s", cfg.Vector.Backend)
	}
	logger.Info(ctx, "vector collection ensured", "backend", cfg.Vector.Backend, "dimension", dim)
	return nil
}
