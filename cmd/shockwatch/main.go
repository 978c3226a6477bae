package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shockwatch-ai/shockwatch/internal/audit"
	"github.com/shockwatch-ai/shockwatch/internal/config"
	"github.com/shockwatch-ai/shockwatch/internal/explain"
	"github.com/shockwatch-ai/shockwatch/internal/model"
	"github.com/shockwatch-ai/shockwatch/internal/pipeline"
	"github.com/shockwatch-ai/shockwatch/internal/server"
	"github.com/shockwatch-ai/shockwatch/internal/telemetry"
)

var version = "dev" // set via -ldflags at release

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "shockwatch.yaml", "Path to shockwatch config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	ctx := context.Background()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Service:  "shockwatch",
		Version:  version,
	})
	if err != nil {
		log.Fatalf("failed to set up telemetry: %v", err)
	}
	defer tel.Shutdown(ctx)

	bundle, err := model.LoadBundle(cfg.Model.BundleDir)
	if err != nil {
		log.Fatalf("failed to load model bundle: %v", err)
	}
	defer bundle.Classifier.Close()
	log.Printf("loaded model bundle %s (%d features)", bundle.Version, len(bundle.Classifier.FeatureNames()))

	method := explain.NewSamplingMethod(bundle.Background)
	method.Permutations = cfg.Explain.Permutations
	method.Seed = cfg.Explain.Seed
	engine := explain.NewEngineWithTolerance(method, cfg.Explain.Tolerance)

	pipe, err := pipeline.New(bundle.Classifier, engine, tel.Tracer())
	if err != nil {
		log.Fatalf("model bundle does not match the known clinical variables: %v", err)
	}

	var sinks []audit.Sink
	var store *audit.Store
	if cfg.Audit.FilePath != "" {
		sink, err := audit.NewFileSink(cfg.Audit.FilePath)
		if err != nil {
			log.Fatalf("failed to open audit file sink: %v", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Audit.WebhookURL != "" {
		sink, err := audit.NewWebhookSink(cfg.Audit.WebhookURL, nil, 2*time.Second)
		if err != nil {
			log.Fatalf("failed to build audit webhook sink: %v", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Audit.SQLitePath != "" {
		store, err = audit.OpenStore(cfg.Audit.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open assessment history store: %v", err)
		}
		sinks = append(sinks, store)
	}

	var emitter *audit.Emitter
	if len(sinks) > 0 {
		emitter = audit.NewEmitter(audit.EmitterConfig{}, sinks)
		defer emitter.Close(ctx)
	}

	srv := server.New(cfg, pipe, bundle.Version, emitter, store)
	if err := srv.Start(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
