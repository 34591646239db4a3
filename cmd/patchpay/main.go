package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hrishi0102/patchpay/internal/api"
	"github.com/hrishi0102/patchpay/internal/config"
	"github.com/hrishi0102/patchpay/internal/database/stores"
	"github.com/hrishi0102/patchpay/internal/evaluator"
	"github.com/hrishi0102/patchpay/internal/github"
	"github.com/hrishi0102/patchpay/internal/payman"
	"github.com/hrishi0102/patchpay/internal/workflow"
	"github.com/hrishi0102/patchpay/pkg/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Print(version.Info())
		return
	}

	// .env is optional; secrets may come from the real environment.
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment as-is")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	s, err := stores.ImportAndInit(cfg.Database.Path, gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open database %s: %v", cfg.Database.Path, err)
	}

	payments := payman.NewFactory(cfg.Payman.BaseURL, cfg.Secrets.EncryptionKey,
		time.Duration(cfg.Payman.Timeout)*time.Second)

	var eval evaluator.Evaluator
	var sources workflow.SourceResolver
	if cfg.Secrets.GeminiAPIKey != "" {
		eval = evaluator.NewGemini(cfg.Secrets.GeminiAPIKey, cfg.Evaluator.Model,
			time.Duration(cfg.Evaluator.Timeout)*time.Second)
		sources = github.NewFetcher(time.Duration(cfg.GitHub.Timeout)*time.Second,
			cfg.Secrets.GitHubToken)
	} else {
		log.Warn("GEMINI_API_KEY not set, automatic submission evaluation is disabled")
	}

	hub := api.NewHub()
	flow := workflow.New(s, payments, eval, sources, hub, workflow.Timeouts{
		Evaluation: time.Duration(cfg.Evaluator.Timeout) * time.Second,
		Payment:    time.Duration(cfg.Payman.Timeout) * time.Second,
	})

	app := api.NewServer(cfg, s, flow, payments, hub)

	// Reload tunables when the config file changes on disk.
	go func() {
		if err := config.Watch(*configPath, func(next *config.Cfg) {
			if level, err := log.ParseLevel(next.LogLevel); err == nil {
				log.SetLevel(level)
			}
			log.Infof("configuration reloaded from %s", *configPath)
		}); err != nil {
			log.Warnf("config watcher disabled: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("patchpay %s listening on %s", version.Version(), addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}
