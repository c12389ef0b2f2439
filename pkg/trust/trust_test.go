package trust

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewDimensionScoresDefaults(t *testing.T) {
	d := NewDimensionScores(nil, nil, nil, nil, nil)
	if !d.Behavior.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("Behavior default = %v, want 0.5", d.Behavior)
	}
	if !d.Composite().Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("Composite() = %v, want 0.5", d.Composite())
	}
}

func TestComposite(t *testing.T) {
	pt2 := 0.2
	d := NewDimensionScores(&pt2, &pt2, &pt2, &pt2, &pt2)
	if !d.Composite().Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("Composite() = %v, want 0.2", d.Composite())
	}
}

func TestWithDeltaClampsAndUpdates(t *testing.T) {
	d := NewDimensionScores(nil, nil, nil, nil, nil)

	updated, ok := d.WithDelta(DimensionBehavior, 0.6)
	if !ok {
		t.Fatal("expected known dimension")
	}
	if !updated.Behavior.Equal(decimal.NewFromFloat(1.0)) {
		t.Errorf("Behavior = %v, want clamped to 1.0", updated.Behavior)
	}

	updated, ok = d.WithDelta(DimensionValidation, -0.9)
	if !ok {
		t.Fatal("expected known dimension")
	}
	if !updated.Validation.Equal(decimal.Zero) {
		t.Errorf("Validation = %v, want clamped to 0", updated.Validation)
	}
}

func TestWithDeltaUnknownDimension(t *testing.T) {
	d := NewDimensionScores(nil, nil, nil, nil, nil)
	if _, ok := d.WithDelta("nonsense", 0.1); ok {
		t.Fatal("expected unknown dimension to report ok=false")
	}
}

func TestStatusNoThresholdIsAlwaysAbove(t *testing.T) {
	s := Score{Composite: decimal.NewFromFloat(0.1)}
	status := s.Status()
	if !status.IsAboveThreshold {
		t.Error("no threshold should mean always above")
	}
}

func TestStatusBelowThreshold(t *testing.T) {
	threshold := decimal.NewFromFloat(0.3)
	s := Score{
		Composite:        decimal.NewFromFloat(0.2),
		MinimumThreshold: &threshold,
		ThresholdAction:  ActionBlock,
	}
	status := s.Status()
	if status.IsAboveThreshold {
		t.Error("0.2 should be below 0.3 threshold")
	}
	if status.ActionIfBelow != ActionBlock {
		t.Errorf("ActionIfBelow = %v, want block", status.ActionIfBelow)
	}
}

func TestStatusAtThresholdIsAbove(t *testing.T) {
	threshold := decimal.NewFromFloat(0.3)
	s := Score{Composite: decimal.NewFromFloat(0.3), MinimumThreshold: &threshold}
	if !s.Status().IsAboveThreshold {
		t.Error("composite equal to threshold should count as above (>=)")
	}
}
