package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/entityshield/internal/anonymize"
	"github.com/straja-ai/entityshield/internal/config"
	"github.com/straja-ai/entityshield/internal/mocksidecar"
	"github.com/straja-ai/entityshield/internal/ner"
)

func main() {
	cfgPath := flag.String("config", "entityshield.yaml", "path to config yaml")
	n := flag.Int("n", 200, "number of iterations")
	text := flag.String("text", "Il sig. Mario Rossi, nato a Napoli, abita in via Garibaldi 12 a Milano e risponde al 3331234567.", "text to anonymize")
	mock := flag.Bool("mock", false, "benchmark against the built-in mock sidecar instead of the configured classifier")
	concurrency := flag.Int("c", 1, "concurrent requests; also sizes the ONNX session pool")
	flag.Parse()

	if *concurrency <= 0 {
		*concurrency = 1
	}
	// One session per worker so pool waits do not skew the numbers.
	if err := os.Setenv("ENTITYSHIELD_POOL_SIZE", strconv.Itoa(*concurrency)); err != nil {
		log.Fatalf("set ENTITYSHIELD_POOL_SIZE: %v", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *mock {
		shutdown, baseURL, err := mocksidecar.StartMockSidecar("127.0.0.1:0")
		if err != nil {
			log.Fatalf("start mock sidecar: %v", err)
		}
		defer shutdown(context.Background())
		cfg.Classifier.Backend = config.BackendSidecar
		cfg.Classifier.SidecarURL = baseURL
		cfg.Classifier.AllowPrivateNetworks = true
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	classifier, closeClassifier, err := ner.NewFromConfig(cfg.Classifier)
	if err != nil {
		log.Fatalf("init classifier: %v", err)
	}
	defer closeClassifier()

	svc := anonymize.NewFromConfig(cfg, classifier, nil)
	ctx := context.Background()

	// Warmup
	for i := 0; i < 5; i++ {
		if _, err := svc.Process(ctx, *text); err != nil {
			log.Fatalf("warmup process failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	var (
		entities  = make([]int, *n)
		durations = make([]time.Duration, *n)
		inference = make([]time.Duration, *n)
		render    = make([]time.Duration, *n)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	wallStart := time.Now()
	for i := 0; i < *n; i++ {
		g.Go(func() error {
			start := time.Now()
			res, err := svc.Process(gctx, *text)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
			durations[i] = time.Since(start)
			inference[i] = res.Timings.Inference
			render[i] = res.Timings.Aggregate + res.Timings.Render
			entities[i] = len(res.Entities)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("process failed: %v", err)
	}
	wall := time.Since(wallStart)

	avg, p50, p95 := summarize(durations)
	infAvg, _, infP95 := summarize(inference)
	renAvg, _, renP95 := summarize(render)

	fmt.Printf("bench: n=%d c=%d rps=%.1f avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f inference_avg_ms=%.2f inference_p95_ms=%.2f postprocess_avg_ms=%.3f postprocess_p95_ms=%.3f entities=%d backend=%s\n",
		len(durations),
		*concurrency,
		float64(len(durations))/wall.Seconds(),
		avg,
		p50,
		p95,
		infAvg,
		infP95,
		renAvg,
		renP95,
		entities[len(entities)-1],
		cfg.Classifier.Backend,
	)
}

func summarize(ds []time.Duration) (avg, p50, p95 float64) {
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg = float64(total.Microseconds()) / 1000.0 / float64(len(sorted))
	p50 = float64(sorted[len(sorted)/2].Microseconds()) / 1000.0
	p95 = float64(sorted[int(float64(len(sorted))*0.95)].Microseconds()) / 1000.0
	return avg, p50, p95
}
