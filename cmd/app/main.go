package main

import (
	"flag"
	"log"
	"os"

	"SignalForge/internal/di"
	"SignalForge/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Run blocks until SIGINT/SIGTERM and stops intake before cleanup
	// closes the sinks.
	return app.Run()
}
