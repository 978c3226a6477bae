package server

import (
	"fmt"

	"github.com/shockwatch-ai/shockwatch/internal/feature"
)

// assessRequest is the POST /v1/assess body. Numeric fields are pointers so
// a missing variable is distinguishable from a legitimate zero.
type assessRequest struct {
	Pneumonia       bool     `json:"pneumonia"`
	COPD            bool     `json:"copd"`
	Age             *float64 `json:"age"`
	HeartRate       *float64 `json:"heartrate"`
	SBP             *float64 `json:"sbp"`
	RespiratoryRate *float64 `json:"respiratoryrate"`
	SpO2            *float64 `json:"spo2"`
	Temperature     *float64 `json:"temperature"`
	WBC             *float64 `json:"wbc"`
	Albumin         *float64 `json:"albumin"`
	ALT             *float64 `json:"alt"`
	BUN             *float64 `json:"bun"`
	Sodium          *float64 `json:"sodium"`
	PlateletCount   *float64 `json:"plateletcount"`
	SOFA            *float64 `json:"sofa"`
}

// clinicalRange is the physiologically plausible window enforced at this
// boundary. The pipeline trusts these checks and never re-validates.
type clinicalRange struct {
	name     string
	value    **float64
	min, max float64
}

// validate checks presence and range of every variable and assembles the
// raw inputs for the pipeline.
func (r *assessRequest) validate() (feature.RawInputs, error) {
	ranges := []clinicalRange{
		{"age", &r.Age, 18, 120},
		{"heartrate", &r.HeartRate, 30, 200},
		{"sbp", &r.SBP, 50, 250},
		{"respiratoryrate", &r.RespiratoryRate, 5, 60},
		{"spo2", &r.SpO2, 50, 100},
		{"temperature", &r.Temperature, 33, 42},
		{"wbc", &r.WBC, 0.1, 100},
		{"albumin", &r.Albumin, 1, 6},
		{"alt", &r.ALT, 0, 10000},
		{"bun", &r.BUN, 1, 300},
		{"sodium", &r.Sodium, 110, 160},
		{"plateletcount", &r.PlateletCount, 5, 1000},
		{"sofa", &r.SOFA, 0, 24},
	}

	for _, cr := range ranges {
		v := *cr.value
		if v == nil {
			return feature.RawInputs{}, fmt.Errorf("%s is required", cr.name)
		}
		if *v < cr.min || *v > cr.max {
			return feature.RawInputs{}, fmt.Errorf("%s must be between %g and %g, got %g", cr.name, cr.min, cr.max, *v)
		}
	}

	return feature.RawInputs{
		Pneumonia:       r.Pneumonia,
		COPD:            r.COPD,
		Age:             *r.Age,
		HeartRate:       *r.HeartRate,
		SBP:             *r.SBP,
		RespiratoryRate: *r.RespiratoryRate,
		SpO2:            *r.SpO2,
		Temperature:     *r.Temperature,
		WBC:             *r.WBC,
		Albumin:         *r.Albumin,
		ALT:             *r.ALT,
		BUN:             *r.BUN,
		Sodium:          *r.Sodium,
		PlateletCount:   *r.PlateletCount,
		SOFA:            *r.SOFA,
	}, nil
}

// orderedValues lays the raw inputs out in the model's feature order for the
// audit event.
func orderedValues(order []string, in feature.RawInputs) []float64 {
	byName := map[string]float64{
		"Pneumonia":       b2f(in.Pneumonia),
		"COPD":            b2f(in.COPD),
		"age":             in.Age,
		"heartrate":       in.HeartRate,
		"SBP":             in.SBP,
		"respiratoryrate": in.RespiratoryRate,
		"spo2":            in.SpO2,
		"temperature":     in.Temperature,
		"WBC":             in.WBC,
		"Albumin":         in.Albumin,
		"ALT":             in.ALT,
		"BUN":             in.BUN,
		"sodium":          in.Sodium,
		"Plateletcount":   in.PlateletCount,
		"SOFA":            in.SOFA,
	}

	out := make([]float64, len(order))
	for i, name := range order {
		out[i] = byName[name]
	}
	return out
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
