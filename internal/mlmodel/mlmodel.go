// Package mlmodel loads a trained fraud classifier bundle and exposes it
// as a model runtime for the risk pipeline.
//
// A bundle directory contains the ONNX model (fraud_model.onnx), a
// model.yaml with version and the feature-order contract, and optionally
// the onnxruntime shared library. The feature order declared in model.yaml
// must match the pipeline's contract exactly or loading fails; a silently
// reordered vector would produce garbage probabilities.
package mlmodel

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// Metadata describes a model bundle, read from model.yaml.
type Metadata struct {
	Version  string   `yaml:"version"`
	Features []string `yaml:"features"`
	Output   string   `yaml:"output"` // "probability" or "logit"
}

// Model wraps the ONNX session behind the pipeline's runtime contract.
// Tensors are pre-allocated once; Run is serialized by a mutex.
type Model struct {
	session *ort.AdvancedSession
	meta    Metadata

	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]

	mu sync.Mutex
}

// Load opens the bundle at dir and verifies its feature contract against
// wantFeatures. Returns an error when the bundle is absent or malformed;
// the caller then runs on the heuristic strategy for the process lifetime.
func Load(dir string, wantFeatures []string) (*Model, error) {
	if dir == "" {
		return nil, errors.New("bundle dir is empty")
	}

	meta, err := loadMetadata(filepath.Join(dir, "model.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load model metadata: %w", err)
	}
	if err := checkFeatureContract(meta.Features, wantFeatures); err != nil {
		return nil, err
	}

	libPath := resolveSharedLibraryPath(dir)
	if libPath == "" {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(dir, "fraud_model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	inputShape := ort.NewShape(1, int64(len(wantFeatures)))
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"features"},
		[]string{"fraud_probability"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Model{
		session: session,
		meta:    meta,
		input:   input,
		output:  output,
	}, nil
}

// Predict runs inference on one feature vector and returns P(fraud).
func (m *Model) Predict(vector []float32) (float64, error) {
	if m == nil || m.session == nil {
		return 0, errors.New("model not initialized")
	}
	if len(vector) != len(m.meta.Features) {
		return 0, fmt.Errorf("feature vector length %d, model expects %d", len(vector), len(m.meta.Features))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), vector)

	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("onnx run: %w", err)
	}

	raw := float64(m.output.GetData()[0])
	if m.meta.Output == "logit" {
		raw = 1.0 / (1.0 + math.Exp(-raw))
	}
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return raw, nil
}

// Version returns the bundle's version tag.
func (m *Model) Version() string {
	return m.meta.Version
}

func loadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	if meta.Version == "" {
		meta.Version = "unknown"
	}
	if meta.Output == "" {
		meta.Output = "probability"
	}
	return meta, nil
}

// checkFeatureContract rejects any bundle whose declared feature order
// differs from the pipeline's.
func checkFeatureContract(got, want []string) error {
	if len(got) == 0 {
		return errors.New("model.yaml declares no features")
	}
	if len(got) != len(want) {
		return fmt.Errorf("model declares %d features, pipeline produces %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("feature order mismatch at index %d: model %q, pipeline %q", i, got[i], want[i])
		}
	}
	return nil
}

// resolveSharedLibraryPath attempts to locate a platform-specific onnxruntime shared library.
// If ONNXRUNTIME_SHARED_LIBRARY_PATH is set, it wins; otherwise we probe common names/locations.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
