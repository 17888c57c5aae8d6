package main

import (
	"flag"
	"log"
	"os"

	"MacroPull/internal/di"
	"MacroPull/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s ttl=%s fallback=%s shared_cache=%t kafka=%t",
		cfg.Environment, cfg.Cache.TTL, cfg.Fallback.Mode, cfg.Cache.Shared, cfg.Kafka.Enabled)

	app, err := di.InitializeApp(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
