package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/straja-ai/entityshield/internal/anonymize"
	"github.com/straja-ai/entityshield/internal/config"
	"github.com/straja-ai/entityshield/internal/mocksidecar"
	"github.com/straja-ai/entityshield/internal/ner"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatHTML = "html"

	viewAnonymized  = "anonymized"
	viewHighlighted = "highlighted"
	viewBoth        = "both"
)

func runAnonymize(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	cfg := env.cfg

	text, err := readInput(cmd)
	if err != nil {
		return err
	}

	if v := cmd.String("backend"); v != "" {
		cfg.Classifier.Backend = strings.ToLower(v)
	}
	if v := cmd.String("model-dir"); v != "" {
		cfg.Classifier.ModelDir = v
	}
	if v := cmd.String("sidecar-url"); v != "" {
		cfg.Classifier.SidecarURL = strings.TrimRight(v, "/")
	}
	if cmd.Bool("mock") {
		shutdown, baseURL, err := mocksidecar.StartMockSidecar("127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("unable to start mock sidecar: %w", err)
		}
		env.onClose(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return shutdown(shutdownCtx)
		})
		cfg.Classifier.Backend = config.BackendSidecar
		cfg.Classifier.SidecarURL = baseURL
		cfg.Classifier.AllowPrivateNetworks = true
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	classifier, closeClassifier, err := ner.NewFromConfig(cfg.Classifier)
	if err != nil {
		return err
	}
	env.onClose(func() error { closeClassifier(); return nil })

	res, err := anonymize.NewFromConfig(cfg, classifier, nil).Process(ctx, text)
	if err != nil {
		return err
	}
	return writeResult(cmd.Root().Writer, res, cmd.String("format"), cmd.String("view"))
}

func readInput(cmd *cli.Command) (string, error) {
	if t := cmd.String("text"); t != "" {
		if cmd.Args().Len() > 0 {
			return "", errors.New("use either --text or SOURCE, not both")
		}
		return t, nil
	}

	src := cmd.Args().Get(0)
	var (
		data []byte
		err  error
	)
	if src == "" || src == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return "", fmt.Errorf("unable to read input: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func writeResult(w io.Writer, res *anonymize.Result, format, view string) error {
	if w == nil {
		w = os.Stdout
	}
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case formatHTML:
		_, err := fmt.Fprintf(w, "<!doctype html>\n<meta charset=\"utf-8\">\n<p style=\"white-space:pre-wrap\">%s</p>\n", res.Highlighted)
		return err
	case formatText, "":
		switch view {
		case viewAnonymized, "":
			_, err := fmt.Fprintln(w, res.Anonymized)
			return err
		case viewHighlighted:
			_, err := fmt.Fprintln(w, res.Highlighted)
			return err
		case viewBoth:
			_, err := fmt.Fprintf(w, "%s\n\n%s\n", res.Highlighted, res.Anonymized)
			return err
		default:
			return fmt.Errorf("unknown view %q", view)
		}
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func runCategories(ctx context.Context, cmd *cli.Command) error {
	cfg := envFromContext(ctx).cfg
	legend := anonymize.PaletteFromConfig(cfg.Render).Legend()

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	switch cmd.String("format") {
	case formatJSON:
		return json.NewEncoder(w).Encode(legend)
	case formatText, "":
		for _, e := range legend {
			if _, err := fmt.Fprintf(w, "%-18s %s\n", e.Category, e.Color); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", cmd.String("format"))
	}
}

func runDumpConfig(ctx context.Context, cmd *cli.Command) error {
	data, err := config.Dump(envFromContext(ctx).cfg)
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}
	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	_, err = w.Write(data)
	return err
}
