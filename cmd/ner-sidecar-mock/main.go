package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straja-ai/entityshield/internal/mocksidecar"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:18001", "listen address for the mock NER sidecar")
	flag.Parse()

	shutdown, baseURL, err := mocksidecar.StartMockSidecar(*addr)
	if err != nil {
		log.Fatalf("mock sidecar error: %v", err)
	}
	log.Printf("mock NER sidecar ready (POST JSON to %s/classify); point classifier.sidecar_url here", baseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
