package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/BartekS5/bulkimport/internal/cli"
	"github.com/BartekS5/bulkimport/internal/config"
	"github.com/BartekS5/bulkimport/pkg/logger"
)

func main() {
	envPath := os.Getenv("ENV_PATH")
	if envPath == "" {
		envPath = ".env"
	}
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	jsonLogs := false
	if cfg, err := config.LoadConfig(); err == nil {
		jsonLogs = cfg.LogJSON
	}
	if err := logger.Initialize(jsonLogs); err != nil {
		log.Fatalf("failed to initialise logger: %v", err)
	}
	defer logger.Sync()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
