package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Gopher0727/GlobalChat/config"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "globalchat",
	Short: "GlobalChat: proxy identities and cross-guild channel relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml or $GLOBALCHAT_CONFIG)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("GLOBALCHAT_CONFIG"); v != "" {
		return v
	}
	return "./config.toml"
}

// loadAll 读取配置并创建日志器
func loadAll() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("配置初始化失败: %w", err)
	}
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("日志初始化失败: %w", err)
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
