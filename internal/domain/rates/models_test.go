package rates

import (
	"errors"
	"testing"
)

func validOverrideInput() NewOverride {
	return NewOverride{
		LeaseUnitID:   "lu1",
		Type:          OverrideFixedRate,
		FixedRate:     floatPtr(75000),
		EffectiveFrom: date(2024, 1, 1),
		Reason:        "negotiated renewal",
		RequestedBy:   "u1",
	}
}

func TestNewOverrideValidateAcceptsEachType(t *testing.T) {
	fixed := validOverrideInput()
	if err := fixed.Validate(); err != nil {
		t.Fatalf("fixed_rate input should validate, got %v", err)
	}

	capped := validOverrideInput()
	capped.Type = OverridePercentageCap
	capped.FixedRate = nil
	capped.PercentageCap = floatPtr(5)
	if err := capped.Validate(); err != nil {
		t.Fatalf("percentage_cap input should validate, got %v", err)
	}

	frozen := validOverrideInput()
	frozen.Type = OverrideNoIncrease
	frozen.FixedRate = nil
	if err := frozen.Validate(); err != nil {
		t.Fatalf("no_increase input should validate, got %v", err)
	}
}

// The cap range is inclusive at both ends: 0 freezes the rate at base, 100
// allows doubling.
func TestNewOverrideValidateCapBounds(t *testing.T) {
	for _, pct := range []float64{0, 100} {
		input := validOverrideInput()
		input.Type = OverridePercentageCap
		input.FixedRate = nil
		input.PercentageCap = floatPtr(pct)
		if err := input.Validate(); err != nil {
			t.Fatalf("percentage_cap of %v should validate, got %v", pct, err)
		}
	}
}

// Scenario: a fixed_rate override without a fixedRate must fail naming the
// missing field.
func TestNewOverrideValidateMissingFixedRate(t *testing.T) {
	input := validOverrideInput()
	input.FixedRate = nil

	err := input.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "fixedRate" {
		t.Fatalf("expected error to name fixedRate, got %q", verr.Field)
	}
}

func TestNewOverrideValidateRejectsWrongPayloadForTag(t *testing.T) {
	cases := []struct {
		name  string
		build func() NewOverride
		field string
	}{
		{
			name: "fixed_rate with percentageCap",
			build: func() NewOverride {
				input := validOverrideInput()
				input.PercentageCap = floatPtr(5)
				return input
			},
			field: "percentageCap",
		},
		{
			name: "percentage_cap with fixedRate",
			build: func() NewOverride {
				input := validOverrideInput()
				input.Type = OverridePercentageCap
				input.PercentageCap = floatPtr(5)
				return input
			},
			field: "fixedRate",
		},
		{
			name: "no_increase with fixedRate",
			build: func() NewOverride {
				input := validOverrideInput()
				input.Type = OverrideNoIncrease
				return input
			},
			field: "fixedRate",
		},
		{
			name: "percentage cap above 100",
			build: func() NewOverride {
				input := validOverrideInput()
				input.Type = OverridePercentageCap
				input.FixedRate = nil
				input.PercentageCap = floatPtr(120)
				return input
			},
			field: "percentageCap",
		},
		{
			name: "negative percentage cap",
			build: func() NewOverride {
				input := validOverrideInput()
				input.Type = OverridePercentageCap
				input.FixedRate = nil
				input.PercentageCap = floatPtr(-5)
				return input
			},
			field: "percentageCap",
		},
		{
			name: "unknown override type",
			build: func() NewOverride {
				input := validOverrideInput()
				input.Type = "discount"
				return input
			},
			field: "overrideType",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build().Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected error on %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestNewOverrideValidateDateOrdering(t *testing.T) {
	input := validOverrideInput()
	input.EffectiveTo = datePtr(2024, 1, 1) // equal to effectiveFrom

	err := input.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "effectiveTo" {
		t.Fatalf("expected error on effectiveTo, got %q", verr.Field)
	}

	input.EffectiveTo = datePtr(2024, 1, 2)
	if err := input.Validate(); err != nil {
		t.Fatalf("strictly later effectiveTo should validate, got %v", err)
	}
}

func TestNewChangeRequestValidate(t *testing.T) {
	input := NewChangeRequest{
		LeaseUnitID:   "lu1",
		ProposedRate:  90000,
		EffectiveFrom: date(2024, 1, 1),
		RequestedBy:   "u1",
	}
	if err := input.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	input.ProposedRate = 0
	err := input.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "proposedRate" {
		t.Fatalf("expected error on proposedRate, got %q", verr.Field)
	}
}

func TestOverrideWindowOverlap(t *testing.T) {
	openEnded := RateOverride{EffectiveFrom: date(2024, 1, 1)}
	bounded := RateOverride{EffectiveFrom: date(2024, 6, 1), EffectiveTo: datePtr(2024, 12, 1)}
	later := RateOverride{EffectiveFrom: date(2024, 12, 1), EffectiveTo: datePtr(2025, 6, 1)}

	if !openEnded.Overlaps(bounded) || !bounded.Overlaps(openEnded) {
		t.Fatal("open-ended window must overlap any later window")
	}
	if bounded.Overlaps(later) || later.Overlaps(bounded) {
		t.Fatal("back-to-back half-open windows must not overlap")
	}
}

func TestStageTerminal(t *testing.T) {
	if StagePendingRecommendation.Terminal() || StagePendingFinal.Terminal() {
		t.Fatal("pending stages must not be terminal")
	}
	if !StageApproved.Terminal() || !StageRejected.Terminal() {
		t.Fatal("approved and rejected must be terminal")
	}
}
