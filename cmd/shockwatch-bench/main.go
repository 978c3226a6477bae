package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shockwatch-ai/shockwatch/internal/config"
	"github.com/shockwatch-ai/shockwatch/internal/explain"
	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/model"
)

// Benchmarks the attribution path, the only stage with meaningful latency.
// With -fake it runs against the in-process classifier, useful for sizing
// the permutation budget without an onnxruntime install.
func main() {
	cfgPath := flag.String("config", "", "path to config yaml (required unless -fake)")
	n := flag.Int("n", 50, "number of iterations")
	useFake := flag.Bool("fake", false, "use the in-process fake classifier instead of the ONNX bundle")
	flag.Parse()

	var clf model.Classifier
	var background []float64
	var bundleVersion string

	permutations := explain.DefaultPermutations
	var seed int64 = 1

	if *useFake {
		clf = model.NewFake(feature.Names)
		background = make([]float64, feature.Count)
		bundleVersion = "fake"
	} else {
		if *cfgPath == "" {
			log.Fatalf("config flag is required (or pass -fake)")
		}
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		bundle, err := model.LoadBundle(cfg.Model.BundleDir)
		if err != nil {
			log.Fatalf("load model bundle: %v", err)
		}
		defer bundle.Classifier.Close()

		clf = bundle.Classifier
		background = bundle.Background
		bundleVersion = bundle.Version
		permutations = cfg.Explain.Permutations
		seed = cfg.Explain.Seed
	}

	method := explain.NewSamplingMethod(background)
	method.Permutations = permutations
	method.Seed = seed
	engine := explain.NewEngine(method)

	builder, err := feature.NewBuilder(clf.FeatureNames())
	if err != nil {
		log.Fatalf("feature schema: %v", err)
	}
	rec := builder.Build(feature.RawInputs{
		Pneumonia: true, Age: 74, HeartRate: 118, SBP: 92, RespiratoryRate: 26,
		SpO2: 91, Temperature: 38.6, WBC: 14.2, Albumin: 2.6, ALT: 58, BUN: 33,
		Sodium: 144, PlateletCount: 120, SOFA: 9,
	})

	ctx := context.Background()

	// Warmup
	for i := 0; i < 3; i++ {
		if _, err := engine.Explain(ctx, clf, rec); err != nil {
			log.Fatalf("warmup explain failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	durations := make([]time.Duration, 0, *n)
	for i := 0; i < *n; i++ {
		start := time.Now()
		if _, err := engine.Explain(ctx, clf, rec); err != nil {
			log.Fatalf("explain failed: %v", err)
		}
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f permutations=%d model=%s\n",
		len(durations),
		avg,
		p50,
		p95,
		permutations,
		bundleVersion,
	)
}
