// Package main 运维引导命令：图数据库约束、向量集合与回调签名校验
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "bootstrap",
		Short:        "Provision stores and verify callbacks for the novel orchestrator",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(schemaCmd())
	root.AddCommand(collectionsCmd())
	root.AddCommand(signCallbackCmd())
	root.AddCommand(verifyCallbackCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
