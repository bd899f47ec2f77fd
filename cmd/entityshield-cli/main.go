package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/straja-ai/entityshield/internal/config"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type envKey struct{}

// appEnv carries state shared between Before, the subcommand and After.
type appEnv struct {
	cfg     *config.Config
	closers []func() error
}

func envFromContext(ctx context.Context) *appEnv {
	if e, ok := ctx.Value(envKey{}).(*appEnv); ok {
		return e
	}
	return &appEnv{}
}

func (e *appEnv) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	env := envFromContext(ctx)
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	env.cfg = cfg
	return ctx, nil
}

func destroyAppContext(ctx context.Context, _ *cli.Command) (err error) {
	env := envFromContext(ctx)
	for i := len(env.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, env.closers[i]())
	}
	env.closers = nil
	return err
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            "entityshield-cli",
		Usage:           "finds personal data in Italian text and highlights or redacts it",
		Version:         version + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "entityshield.yaml", Usage: "load configuration from `FILE` (YAML)"},
		},
		Commands: []*cli.Command{
			{
				Name:      "anonymize",
				Usage:     "Classifies text and prints the anonymized and/or highlighted view",
				Action:    runAnonymize,
				ArgsUsage: "[SOURCE]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "text to process instead of SOURCE"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatText, Usage: "output `FORMAT`: text, json or html"},
					&cli.StringFlag{Name: "view", Value: viewAnonymized, Usage: "`VIEW` printed in text format: anonymized, highlighted or both"},
					&cli.StringFlag{Name: "backend", Usage: "classifier `BACKEND` (onnx or sidecar), overrides config"},
					&cli.StringFlag{Name: "model-dir", Usage: "ONNX model `DIR`, overrides config"},
					&cli.StringFlag{Name: "sidecar-url", Usage: "NER sidecar `URL`, overrides config"},
					&cli.BoolFlag{Name: "mock", Usage: "classify with the built-in mock sidecar (no model needed)"},
				},
			},
			{
				Name:   "categories",
				Usage:  "Lists the entity categories and their highlight colors",
				Action: runCategories,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatText, Usage: "output `FORMAT`: text or json"},
				},
			},
			{
				Name:   "dumpconfig",
				Usage:  "Dumps the effective configuration (YAML)",
				Action: runDumpConfig,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.WithValue(context.Background(), envKey{}, &appEnv{}), os.Interrupt, syscall.SIGTERM)

	var err error
	// os.Exit skips deferred calls, so stop() runs first.
	defer func() {
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			os.Exit(1)
		}
	}()
	err = newApp().Run(ctx, os.Args)
}
