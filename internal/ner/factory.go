package ner

import (
	"fmt"
	"strings"

	"github.com/straja-ai/entityshield/internal/config"
)

// NewFromConfig builds the classifier selected by c.Backend. The returned
// close function releases backend resources and is never nil.
func NewFromConfig(c config.ClassifierConfig) (Classifier, func(), error) {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case config.BackendONNX, "":
		m, err := LoadModel(c.ModelDir, c.SeqLen, RuntimeSettings{
			PoolSize:     c.PoolSize,
			IntraThreads: c.IntraThreads,
			InterThreads: c.InterThreads,
		})
		if err != nil {
			return nil, func() {}, fmt.Errorf("load onnx classifier: %w", err)
		}
		return m, m.Close, nil
	case config.BackendSidecar:
		return NewSidecar(c.SidecarURL, c.SidecarTimeout), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown classifier backend %q", c.Backend)
	}
}
