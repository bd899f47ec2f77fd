package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/straja-ai/entityshield/internal/anonymize"
	"github.com/straja-ai/entityshield/internal/audit"
	"github.com/straja-ai/entityshield/internal/auth"
	"github.com/straja-ai/entityshield/internal/config"
	"github.com/straja-ai/entityshield/internal/ner"
	"github.com/straja-ai/entityshield/internal/redact"
	"github.com/straja-ai/entityshield/internal/server"
	"github.com/straja-ai/entityshield/internal/telemetry"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "entityshield.yaml", "Path to EntityShield config file")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		redact.Fatalf("failed to load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("invalid config: %v", err)
	}
	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			redact.Fatalf("failed to dump config: %v", err)
		}
		_, _ = os.Stdout.Write(out)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.ServiceName,
		Version:  version,
	})
	if err != nil {
		redact.Fatalf("failed to init telemetry: %v", err)
	}

	classifier, closeClassifier, err := ner.NewFromConfig(cfg.Classifier)
	if err != nil {
		redact.Fatalf("failed to init classifier: %v", err)
	}
	redact.Logf("classifier backend=%s", cfg.Classifier.Backend)

	authz, err := auth.NewFromConfig(cfg)
	if err != nil {
		redact.Fatalf("failed to init auth: %v", err)
	}
	if authz.Enabled() {
		redact.Logf("api key auth enabled for %d client(s)", len(cfg.Auth.Clients))
	}

	emitter, err := audit.FromConfig(cfg.Audit)
	if err != nil {
		redact.Fatalf("failed to init audit: %v", err)
	}

	svc := anonymize.NewFromConfig(cfg, classifier, tel)
	opts := []server.Option{server.WithAuth(authz), server.WithAudit(emitter)}
	if cfg.Server.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, server.WithMetrics(reg))
	}
	srv := server.New(cfg, svc, opts...)

	runErr := srv.Start(ctx)

	closeClassifier()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if emitter != nil {
		m := emitter.MetricsSnapshot()
		redact.Logf("audit: enqueued=%d dropped=%d", m.Enqueued(), m.Dropped())
		if err := emitter.Close(shutdownCtx); err != nil {
			redact.Logf("audit close: %v", err)
		}
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		redact.Logf("telemetry shutdown: %v", err)
	}
	if runErr != nil {
		redact.Fatalf("server error: %v", runErr)
	}
}
