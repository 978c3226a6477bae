// Package pipeline runs one assessment end to end: build the ordered record
// once, score and tier it, and (when asked) explain and rank it off the same
// record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shockwatch-ai/shockwatch/internal/explain"
	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/model"
	"github.com/shockwatch-ai/shockwatch/internal/predict"
)

// Timings captures per-stage latency for one assessment.
type Timings struct {
	Score   time.Duration
	Explain time.Duration
}

// Assessment is the complete result of one pipeline run. It is a
// request-scoped value: computed once, never mutated.
type Assessment struct {
	// Probability of septic shock within 12 hours.
	Probability    float64
	Tier           predict.Tier
	Recommendation string

	// Baseline and Attributions are set only when the run included the
	// explanation leg. Attributions is ranked by descending magnitude.
	Baseline     float64
	Attributions []explain.RankedContribution

	Timings Timings
}

// Explained reports whether the assessment carries an attribution.
func (a *Assessment) Explained() bool { return a.Attributions != nil }

// Pipeline holds the process-wide, read-only collaborators: the classifier,
// the builder derived from its declared feature order, and the attribution
// engine. Construct once at startup; Assess is safe for concurrent use.
type Pipeline struct {
	clf     model.Classifier
	builder *feature.Builder
	engine  *explain.Engine
	tracer  trace.Tracer
}

// New validates the classifier's declared feature order and wires the
// pipeline. A schema mismatch here is a deployment fault and surfaces as
// *feature.SchemaMismatchError before any request is served.
func New(clf model.Classifier, engine *explain.Engine, tracer trace.Tracer) (*Pipeline, error) {
	builder, err := feature.NewBuilder(clf.FeatureNames())
	if err != nil {
		return nil, err
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("")
	}
	return &Pipeline{
		clf:     clf,
		builder: builder,
		engine:  engine,
		tracer:  tracer,
	}, nil
}

// Order returns the feature order assessments are computed in.
func (p *Pipeline) Order() []string { return p.builder.Order() }

// Assess runs one request through the pipeline. withExplanation=false skips
// the attribution leg, which is the only data-dependent expensive stage.
// Either a complete Assessment is returned or an error naming the failed
// stage; there are no partial results.
func (p *Pipeline) Assess(ctx context.Context, in feature.RawInputs, withExplanation bool) (*Assessment, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.assess")
	defer span.End()

	rec := p.builder.Build(in)

	scoreStart := time.Now()
	probability, err := predict.Score(p.clf, rec)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	scoreDur := time.Since(scoreStart)

	tier, recommendation := predict.Classify(probability)
	span.SetAttributes(
		attribute.Float64("shockwatch.probability", probability),
		attribute.String("shockwatch.tier", string(tier)),
	)

	out := &Assessment{
		Probability:    probability,
		Tier:           tier,
		Recommendation: recommendation,
		Timings:        Timings{Score: scoreDur},
	}

	if !withExplanation {
		return out, nil
	}

	explainStart := time.Now()
	_, explainSpan := p.tracer.Start(ctx, "pipeline.explain")
	attr, err := p.engine.Explain(ctx, p.clf, rec)
	explainSpan.End()
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	out.Timings.Explain = time.Since(explainStart)

	out.Baseline = attr.Baseline
	out.Attributions = explain.Rank(attr)
	return out, nil
}
