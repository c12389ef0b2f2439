// Package trust implements the trust-score data model: five
// equally-weighted dimensions in [0,1], a fixed-point composite,
// threshold actions, and append-only history capturing pre-change
// state. Composite and dimension values are stored as shopspring
// decimals so that is_above_threshold comparisons are reproducible
// across writers and readers.
package trust

import (
	"github.com/shopspring/decimal"
)

// defaultDimension is used whenever a dimension is not supplied.
var defaultDimension = decimal.NewFromFloat(0.5)

// scale is the number of decimal places trust scores are rounded to.
const scale = 2

// ThresholdAction directs what happens when composite < threshold.
type ThresholdAction string

const (
	ActionWarn          ThresholdAction = "warn"
	ActionBlock         ThresholdAction = "block"
	ActionRequireReview ThresholdAction = "require_review"
	ActionNone          ThresholdAction = "none"
)

// Dimension names, recognized by Get and WithDelta.
const (
	DimensionBehavior   = "behavior"
	DimensionValidation = "validation"
	DimensionProvenance = "provenance"
	DimensionAlignment  = "alignment"
	DimensionReputation = "reputation"
)

// DimensionScores holds the five trust dimensions, each clamped to
// [0,1].
type DimensionScores struct {
	Behavior   decimal.Decimal `json:"behavior"`
	Validation decimal.Decimal `json:"validation"`
	Provenance decimal.Decimal `json:"provenance"`
	Alignment  decimal.Decimal `json:"alignment"`
	Reputation decimal.Decimal `json:"reputation"`
}

// NewDimensionScores builds a DimensionScores with any unset (nil)
// pointers defaulted to 0.5, the neutral midpoint for a new entity.
func NewDimensionScores(behavior, validation, provenance, alignment, reputation *float64) DimensionScores {
	pick := func(v *float64) decimal.Decimal {
		if v == nil {
			return defaultDimension
		}
		return decimal.NewFromFloat(*v).Round(scale)
	}
	return DimensionScores{
		Behavior:   pick(behavior),
		Validation: pick(validation),
		Provenance: pick(provenance),
		Alignment:  pick(alignment),
		Reputation: pick(reputation),
	}
}

// Composite returns the equal-weighted mean of the five dimensions,
// rounded to the storage scale.
func (d DimensionScores) Composite() decimal.Decimal {
	sum := d.Behavior.Add(d.Validation).Add(d.Provenance).Add(d.Alignment).Add(d.Reputation)
	return sum.Div(decimal.NewFromInt(5)).Round(scale)
}

// Get returns the named dimension's value and whether the name was
// recognized.
func (d DimensionScores) Get(name string) (decimal.Decimal, bool) {
	switch name {
	case DimensionBehavior:
		return d.Behavior, true
	case DimensionValidation:
		return d.Validation, true
	case DimensionProvenance:
		return d.Provenance, true
	case DimensionAlignment:
		return d.Alignment, true
	case DimensionReputation:
		return d.Reputation, true
	default:
		return decimal.Zero, false
	}
}

// WithDelta returns a copy of d with the named dimension adjusted by
// delta and clamped to [0,1]. ok is false for an unrecognized name, in
// which case d is returned unchanged; the registry's PATCH trust handler
// rejects such a name with an invalid_dimension error.
func (d DimensionScores) WithDelta(name string, delta float64) (DimensionScores, bool) {
	current, ok := d.Get(name)
	if !ok {
		return d, false
	}
	next := clamp01(current.Add(decimal.NewFromFloat(delta))).Round(scale)

	out := d
	switch name {
	case DimensionBehavior:
		out.Behavior = next
	case DimensionValidation:
		out.Validation = next
	case DimensionProvenance:
		out.Provenance = next
	case DimensionAlignment:
		out.Alignment = next
	case DimensionReputation:
		out.Reputation = next
	}
	return out, true
}

func clamp01(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return v
}

// Score is the live trust-score row for one (entity_type, entity_id).
type Score struct {
	ID                 string          `json:"id"`
	EntityType         string          `json:"entity_type"`
	EntityID           string          `json:"entity_id"`
	Composite          decimal.Decimal `json:"composite_score"`
	Confidence         decimal.Decimal `json:"confidence_level"`
	Dimensions         DimensionScores `json:"dimension_scores"`
	CalculationVersion string          `json:"calculation_version"`
	MinimumThreshold   *decimal.Decimal `json:"minimum_threshold,omitempty"`
	ThresholdAction    ThresholdAction  `json:"threshold_action,omitempty"`
}

// ThresholdStatus reports whether a composite clears a threshold.
type ThresholdStatus struct {
	MinimumThreshold *decimal.Decimal
	IsAboveThreshold bool
	ActionIfBelow    ThresholdAction
}

// Status computes the read-side threshold status for s: absent
// threshold means always above.
func (s Score) Status() ThresholdStatus {
	if s.MinimumThreshold == nil {
		return ThresholdStatus{IsAboveThreshold: true, ActionIfBelow: s.ThresholdAction}
	}
	return ThresholdStatus{
		MinimumThreshold: s.MinimumThreshold,
		IsAboveThreshold: s.Composite.GreaterThanOrEqual(*s.MinimumThreshold),
		ActionIfBelow:    s.ThresholdAction,
	}
}

// History is one append-only row capturing the pre-change state at the
// instant of an update.
type History struct {
	ID               string
	TrustScoreID     string
	CompositeAtChange decimal.Decimal
	DimensionsAtChange DimensionScores
	ChangeReason     *string
	ChangeEventID    *string
}
