package feature

import (
	"fmt"
)

// Names is the canonical set of clinical variables the model was trained on,
// in the order the original training frame declared them. The classifier's own
// declared order is authoritative at build time; this list only defines which
// names are legal.
var Names = []string{
	"Pneumonia",
	"COPD",
	"age",
	"heartrate",
	"SBP",
	"respiratoryrate",
	"spo2",
	"temperature",
	"WBC",
	"Albumin",
	"ALT",
	"BUN",
	"sodium",
	"Plateletcount",
	"SOFA",
}

// Count is the number of clinical variables per record.
const Count = 15

// RawInputs holds one request's clinical variables as collected at the
// boundary, before ordering. Ranges are the boundary's problem; the builder
// only orders and coerces.
type RawInputs struct {
	Pneumonia       bool
	COPD            bool
	Age             float64
	HeartRate       float64
	SBP             float64
	RespiratoryRate float64
	SpO2            float64
	Temperature     float64
	WBC             float64
	Albumin         float64
	ALT             float64
	BUN             float64
	Sodium          float64
	PlateletCount   float64
	SOFA            float64
}

// Record is one ordered feature row. Values[i] belongs to Order[i], and Order
// is exactly the classifier's declared feature order.
type Record struct {
	Order  []string
	Values []float64
}

// SchemaMismatchError reports that a classifier's declared feature order does
// not line up with the known clinical variables. This is a configuration
// fault: the wrong model bundle was deployed. It is fatal and never retried.
type SchemaMismatchError struct {
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return "feature schema mismatch: " + e.Reason
}

// Builder assembles ordered feature records for one specific classifier
// schema. Construct it once at startup and share it; it is read-only after
// NewBuilder.
type Builder struct {
	order []string
	index map[string]int // name -> position in order
}

// NewBuilder validates the classifier's declared feature order against the
// known variable names. The order must contain exactly the 15 known names,
// each once, in any order. Any deviation is a *SchemaMismatchError.
func NewBuilder(declaredOrder []string) (*Builder, error) {
	if len(declaredOrder) != Count {
		return nil, &SchemaMismatchError{
			Reason: fmt.Sprintf("classifier declares %d features, expected %d", len(declaredOrder), Count),
		}
	}

	known := make(map[string]bool, Count)
	for _, n := range Names {
		known[n] = true
	}

	index := make(map[string]int, Count)
	for i, name := range declaredOrder {
		if !known[name] {
			return nil, &SchemaMismatchError{
				Reason: fmt.Sprintf("classifier declares unknown feature %q", name),
			}
		}
		if _, dup := index[name]; dup {
			return nil, &SchemaMismatchError{
				Reason: fmt.Sprintf("classifier declares feature %q twice", name),
			}
		}
		index[name] = i
	}

	order := make([]string, Count)
	copy(order, declaredOrder)

	return &Builder{order: order, index: index}, nil
}

// Order returns the declared feature order the builder emits records in.
func (b *Builder) Order() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Build assembles one ordered record from raw inputs. Booleans become 0/1;
// nothing else is transformed. Build cannot fail: schema problems were
// already rejected in NewBuilder.
func (b *Builder) Build(in RawInputs) Record {
	byName := map[string]float64{
		"Pneumonia":       boolToFloat(in.Pneumonia),
		"COPD":            boolToFloat(in.COPD),
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

	values := make([]float64, Count)
	for name, v := range byName {
		values[b.index[name]] = v
	}

	return Record{
		Order:  b.Order(),
		Values: values,
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
