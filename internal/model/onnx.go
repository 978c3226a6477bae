package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// Bundle is a loaded model bundle: the classifier plus the metadata the
// pipeline needs around it.
type Bundle struct {
	Classifier *ONNXClassifier
	// Version identifies the trained model, e.g. "rf-sepsis-2026.01".
	Version string
	// Background is the reference record used as the attribution baseline,
	// ordered like Classifier.FeatureNames().
	Background []float64
}

// ONNXClassifier wraps an ONNX session for the exported random-forest model.
// The session and its tensors are allocated once; Run is serialized with a
// mutex because onnxruntime sessions are not re-entrant.
type ONNXClassifier struct {
	session  *ort.AdvancedSession
	features []string

	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]

	mu sync.Mutex
}

// bundleMeta mirrors bundle.yaml.
type bundleMeta struct {
	Version    string             `yaml:"version"`
	Background map[string]float64 `yaml:"background"`
}

// LoadBundle initializes the ONNX session and reads the bundle metadata.
// Expected layout under bundleDir:
//
//	model.onnx          exported classifier (input "float_input", output "probabilities")
//	feature_names.json  JSON array with the training feature order
//	bundle.yaml         version + background record for attribution
func LoadBundle(bundleDir string) (*Bundle, error) {
	if bundleDir == "" {
		return nil, errors.New("bundleDir is empty")
	}

	libPath := resolveSharedLibraryPath(bundleDir)
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	} else {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(bundleDir, "model.onnx")
	featuresPath := filepath.Join(bundleDir, "feature_names.json")
	metaPath := filepath.Join(bundleDir, "bundle.yaml")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	features, err := loadFeatureNames(featuresPath)
	if err != nil {
		return nil, fmt.Errorf("load feature names: %w", err)
	}

	meta, err := loadBundleMeta(metaPath)
	if err != nil {
		return nil, fmt.Errorf("load bundle metadata: %w", err)
	}

	background, err := orderBackground(meta.Background, features)
	if err != nil {
		return nil, fmt.Errorf("bundle background: %w", err)
	}

	inputShape := ort.NewShape(1, int64(len(features)))
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	outputShape := ort.NewShape(1, 2)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"float_input"},
		[]string{"probabilities"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	clf := &ONNXClassifier{
		session:  session,
		features: features,
		input:    input,
		output:   output,
	}

	return &Bundle{
		Classifier: clf,
		Version:    meta.Version,
		Background: background,
	}, nil
}

// FeatureNames returns the training feature order from the bundle.
func (c *ONNXClassifier) FeatureNames() []string {
	out := make([]string, len(c.features))
	copy(out, c.features)
	return out
}

// PredictProba runs the session on one ordered record.
func (c *ONNXClassifier) PredictProba(values []float64) ([]float64, error) {
	if c == nil || c.session == nil {
		return nil, errors.New("onnx classifier not initialized")
	}
	if len(values) != len(c.features) {
		return nil, fmt.Errorf("record has %d values, model expects %d", len(values), len(c.features))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	in := c.input.GetData()
	for i, v := range values {
		in[i] = float32(v)
	}

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := c.output.GetData()
	probs := make([]float64, len(raw))
	for i, p := range raw {
		probs[i] = float64(p)
	}
	return probs, nil
}

// Close releases the session and its tensors.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			errs = append(errs, err)
		}
		c.session = nil
	}
	if c.input != nil {
		if err := c.input.Destroy(); err != nil {
			errs = append(errs, err)
		}
		c.input = nil
	}
	if c.output != nil {
		if err := c.output.Destroy(); err != nil {
			errs = append(errs, err)
		}
		c.output = nil
	}
	return errors.Join(errs...)
}

func loadFeatureNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New("feature name list is empty")
	}
	return names, nil
}

func loadBundleMeta(path string) (*bundleMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta bundleMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.Version == "" {
		meta.Version = "unversioned"
	}
	return &meta, nil
}

// orderBackground turns the named background map into a slice aligned with
// the model's feature order. Every feature needs a background value; a hole
// would silently skew every attribution computed against it.
func orderBackground(byName map[string]float64, features []string) ([]float64, error) {
	if len(byName) == 0 {
		return nil, errors.New("background record is empty")
	}

	out := make([]float64, len(features))
	for i, name := range features {
		v, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("background is missing feature %q", name)
		}
		out[i] = v
	}
	if len(byName) != len(features) {
		return nil, fmt.Errorf("background has %d entries, model expects %d", len(byName), len(features))
	}
	return out, nil
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
