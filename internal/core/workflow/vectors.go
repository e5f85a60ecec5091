// Package workflow contains the pure business logic for the epistemic workflow:
// PREFLIGHT → (INVESTIGATE ⇄ CHECK)* → ACT → POSTFLIGHT, plus the CLARIFY gate.
// This is part of the Functional Core - no I/O, only pure functions.
package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Dimension indexes one bounded score inside a Vectors value.
type Dimension int

const (
	Engagement Dimension = iota
	Know
	Do
	Context
	Clarity
	Confidence
	Uncertainty
	Completion

	NumDimensions
)

var dimensionNames = [NumDimensions]string{
	Engagement:  "engagement",
	Know:        "know",
	Do:          "do",
	Context:     "context",
	Clarity:     "clarity",
	Confidence:  "confidence",
	Uncertainty: "uncertainty",
	Completion:  "completion",
}

// String returns the wire name of the dimension.
func (d Dimension) String() string {
	if d < 0 || d >= NumDimensions {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return dimensionNames[d]
}

// ParseDimension looks up a dimension by its wire name.
func ParseDimension(name string) (Dimension, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range dimensionNames {
		if n == name {
			return Dimension(i), true
		}
	}
	return 0, false
}

// DimensionNames returns the wire names in vector order.
func DimensionNames() []string {
	names := make([]string, NumDimensions)
	copy(names, dimensionNames[:])
	return names
}

// Vectors is the fixed-size score vector attached to every assessment.
// Assessment scores are bounded to [0,1]; deltas reuse the type with [-1,1].
type Vectors [NumDimensions]float64

// Get returns the score for a dimension.
func (v Vectors) Get(d Dimension) float64 { return v[d] }

// Set returns a copy of v with dimension d set to score.
func (v Vectors) Set(d Dimension, score float64) Vectors {
	v[d] = score
	return v
}

// Validate checks every score is a finite number in [0,1].
func (v Vectors) Validate() error {
	for i, score := range v {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return fmt.Errorf("%s: score is not a finite number", Dimension(i))
		}
		if score < 0 || score > 1 {
			return fmt.Errorf("%s: score %.3f outside [0,1]", Dimension(i), score)
		}
	}
	return nil
}

// Sub returns the per-dimension signed difference v - base.
func (v Vectors) Sub(base Vectors) Vectors {
	var out Vectors
	for i := range v {
		out[i] = round3(v[i] - base[i])
	}
	return out
}

// Map returns the vector keyed by dimension name.
func (v Vectors) Map() map[string]float64 {
	m := make(map[string]float64, NumDimensions)
	for i, score := range v {
		m[dimensionNames[i]] = score
	}
	return m
}

// VectorsFromMap builds a vector from name→score pairs.
// Unknown names are rejected; missing names default to zero.
func VectorsFromMap(m map[string]float64) (Vectors, error) {
	var v Vectors
	var unknown []string
	for name, score := range m {
		d, ok := ParseDimension(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		v[d] = score
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Vectors{}, fmt.Errorf("unknown dimension(s) %s (valid: %s)",
			strings.Join(unknown, ", "), strings.Join(DimensionNames(), ", "))
	}
	return v, nil
}

// ParseVectors parses "name=value,name=value" pairs.
func ParseVectors(s string) (Vectors, error) {
	m := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return Vectors{}, fmt.Errorf("invalid vector %q (expected name=value)", pair)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Vectors{}, fmt.Errorf("invalid score for %s: %w", strings.TrimSpace(name), err)
		}
		m[strings.TrimSpace(name)] = score
	}
	return VectorsFromMap(m)
}

// MarshalJSON encodes the vector as a name→score object.
func (v Vectors) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// UnmarshalJSON decodes a name→score object.
func (v *Vectors) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := VectorsFromMap(m)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
