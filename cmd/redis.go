package cmd

import (
	"fmt"
	"log"

	"remixai/cache"
	"remixai/config"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check Redis connectivity",
	Long:  `Connect to the configured Redis instance and run a basic read/write round trip.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if cfg.RedisHost == "" {
			log.Fatal("REDIS_HOST is not configured")
		}
		fmt.Printf("Redis: %s:%s, DB %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.Connect(cfg); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		if err := cache.Ping(); err != nil {
			log.Fatalf("Redis round trip failed: %v", err)
		}
		if err := cache.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
		fmt.Println("Redis OK")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
