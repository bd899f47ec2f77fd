package ner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/straja-ai/entityshield/internal/redact"
	"github.com/straja-ai/entityshield/internal/spans"
)

// Classifier produces per-token BIO predictions for a text.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]spans.TokenPrediction, error)
}

// Model runs a token-classification ONNX export in-process.
type Model struct {
	id        string
	modelPath string
	tokenizer *WordPieceTokenizer
	labels    []string
	numLabels int
	seqLen    int
	sessions  chan *session
	poolSize  int
}

type session struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

// LoadModel initializes the ONNX runtime, tokenizer, label map and a pool of
// sessions for the model found in modelDir.
func LoadModel(modelDir string, seqLen int, rt RuntimeSettings) (*Model, error) {
	if strings.TrimSpace(modelDir) == "" {
		return nil, errors.New("model dir is empty")
	}
	if seqLen <= 2 {
		seqLen = 512
	}
	rt = ResolveRuntime(rt)

	if !modelDirLooksValid(modelDir) {
		return nil, fmt.Errorf("model dir %s is missing model, config or tokenizer assets", modelDir)
	}
	modelPath := resolveModelPath(modelDir)

	meta, err := loadModelMeta(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load model config: %w", err)
	}
	if len(meta.Labels) == 0 {
		return nil, errors.New("model config has no token labels (id2label)")
	}

	tokenizer, err := LoadTokenizerFromDir(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	libPath := resolveSharedLibraryPath(modelDir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	outputName, err := selectOutputName(modelPath)
	if err != nil {
		return nil, fmt.Errorf("output selection: %w", err)
	}

	m := &Model{
		id:        filepath.Base(filepath.Clean(modelDir)),
		modelPath: modelPath,
		tokenizer: tokenizer,
		labels:    meta.Labels,
		numLabels: meta.NumLabels,
		seqLen:    seqLen,
		sessions:  make(chan *session, rt.PoolSize),
		poolSize:  rt.PoolSize,
	}
	for i := 0; i < rt.PoolSize; i++ {
		ss, err := newSession(modelPath, seqLen, meta.NumLabels, rt, meta.RequiresTokenType, outputName)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, rt.PoolSize, err)
		}
		m.sessions <- ss
	}

	redact.Logf("ner: loaded %s labels=%d seq_len=%d sessions=%d", filepath.Base(modelPath), len(meta.Labels), seqLen, rt.PoolSize)
	return m, nil
}

// ModelFile returns the loaded model file name.
func (m *Model) ModelFile() string {
	if m == nil {
		return ""
	}
	return filepath.Base(m.modelPath)
}

// Labels returns the model's label vocabulary in id order.
func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Classify tokenizes text, runs the model and returns one prediction per
// word piece. It waits for a free session or ctx cancellation.
func (m *Model) Classify(ctx context.Context, text string) ([]spans.TokenPrediction, error) {
	if m == nil || m.tokenizer == nil || m.sessions == nil {
		return nil, errors.New("ner model not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var ss *session
	select {
	case ss = <-m.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.sessions <- ss }()

	enc := m.tokenizer.EncodeWithOffsets(text, m.seqLen)
	if enc.Truncated {
		redact.Logf("ner: input truncated to %d tokens model=%s", m.seqLen, m.id)
	}
	copy(ss.inputIDs.GetData(), enc.IDs)
	copy(ss.attentionMask.GetData(), enc.Mask)
	if ss.tokenTypeIDs != nil {
		tokenTypes := ss.tokenTypeIDs.GetData()
		for i := range tokenTypes {
			tokenTypes[i] = 0
		}
	}

	if err := ss.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return decodePredictions(ss.output.GetData(), m.numLabels, m.labels, enc), nil
}

// Close releases every pooled session. It must not race with Classify.
func (m *Model) Close() {
	if m == nil || m.sessions == nil {
		return
	}
	for {
		select {
		case ss := <-m.sessions:
			ss.destroy()
		default:
			return
		}
	}
}

func newSession(modelPath string, seqLen, numLabels int, rt RuntimeSettings, includeTokenType bool, outputName string) (*session, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(rt.IntraThreads); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(rt.InterThreads); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	ss := &session{}
	inputShape := ort.NewShape(1, int64(seqLen))
	if ss.inputIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	if ss.attentionMask, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	if includeTokenType {
		if ss.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
			ss.destroy()
			return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
		}
	}
	if ss.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(numLabels))); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask"}
	inputValues := []ort.Value{ss.inputIDs, ss.attentionMask}
	if ss.tokenTypeIDs != nil {
		inputNames = append(inputNames, "token_type_ids")
		inputValues = append(inputValues, ss.tokenTypeIDs)
	}
	ss.session, err = ort.NewAdvancedSession(
		modelPath,
		inputNames,
		[]string{outputName},
		inputValues,
		[]ort.Value{ss.output},
		opts,
	)
	if err != nil {
		ss.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return ss, nil
}

func (ss *session) destroy() {
	if ss == nil {
		return
	}
	if ss.session != nil {
		_ = ss.session.Destroy()
	}
	if ss.inputIDs != nil {
		_ = ss.inputIDs.Destroy()
	}
	if ss.attentionMask != nil {
		_ = ss.attentionMask.Destroy()
	}
	if ss.tokenTypeIDs != nil {
		_ = ss.tokenTypeIDs.Destroy()
	}
	if ss.output != nil {
		_ = ss.output.Destroy()
	}
}

func selectOutputName(modelPath string) (string, error) {
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return "", err
	}
	if len(outputs) == 0 {
		return "", fmt.Errorf("no outputs found")
	}
	for _, out := range outputs {
		if strings.EqualFold(out.Name, "logits") {
			return out.Name, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0].Name, nil
	}
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		names = append(names, out.Name)
	}
	return "", fmt.Errorf("multiple outputs found without logits: %v", names)
}

// modelDirLooksValid reports whether dir holds the assets LoadModel needs.
func modelDirLooksValid(dir string) bool {
	if resolveModelPath(dir) == "" {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		if _, err := os.Stat(filepath.Join(dir, "label_map.json")); err != nil {
			return false
		}
	}
	for _, p := range []string{"vocab.txt", filepath.Join("tokenizer", "vocab.txt"), "tokenizer.json", filepath.Join("tokenizer", "tokenizer.json")} {
		if _, err := os.Stat(filepath.Join(dir, p)); err == nil {
			return true
		}
	}
	return false
}
