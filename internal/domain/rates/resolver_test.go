package rates

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func floatPtr(v float64) *float64 { return &v }

func TestResolveBaseOnly(t *testing.T) {
	resolution := Resolve(80000, nil, nil, date(2024, 6, 1))
	if resolution.Rate != 80000 {
		t.Fatalf("expected base rate 80000, got %v", resolution.Rate)
	}
	if resolution.Source != SourceBase {
		t.Fatalf("expected source base, got %s", resolution.Source)
	}
}

func TestResolveStandardIncrease(t *testing.T) {
	increases := []RateChangeRequest{
		{ID: "r1", ProposedRate: 85000, EffectiveFrom: date(2023, 1, 1), Stage: StageApproved},
		{ID: "r2", ProposedRate: 90000, EffectiveFrom: date(2024, 1, 1), Stage: StageApproved},
		{ID: "r3", ProposedRate: 99000, EffectiveFrom: date(2025, 1, 1), Stage: StageApproved},
	}

	resolution := Resolve(80000, increases, nil, date(2024, 6, 1))
	if resolution.Rate != 90000 {
		t.Fatalf("expected latest applicable increase 90000, got %v", resolution.Rate)
	}
	if resolution.Source != SourceStandardIncrease {
		t.Fatalf("expected source standard_increase, got %s", resolution.Source)
	}
	if resolution.RequestID != "r2" {
		t.Fatalf("expected increase r2, got %s", resolution.RequestID)
	}
}

func TestResolveIgnoresPendingIncreases(t *testing.T) {
	increases := []RateChangeRequest{
		{ID: "r1", ProposedRate: 90000, EffectiveFrom: date(2024, 1, 1), Stage: StagePendingFinal},
	}
	resolution := Resolve(80000, increases, nil, date(2024, 6, 1))
	if resolution.Rate != 80000 || resolution.Source != SourceBase {
		t.Fatalf("pending increase must not apply, got %v from %s", resolution.Rate, resolution.Source)
	}
}

// Scenario: floors [{100,500},{50,600}] give base 80000; an approved
// open-ended fixed override of 75000 wins from its effective date on.
func TestResolveFixedOverride(t *testing.T) {
	floors := []Floor{{Area: 100, Rate: 500}, {Area: 50, Rate: 600}}
	base := Compose(floors, 0, 0).BaseRent

	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverrideFixedRate,
		FixedRate:     floatPtr(75000),
		EffectiveFrom: date(2024, 1, 1),
		Stage:         StageApproved,
	}}

	resolution := Resolve(base, nil, overrides, date(2024, 6, 1))
	if resolution.Rate != 75000 {
		t.Fatalf("expected fixed rate 75000, got %v", resolution.Rate)
	}
	if resolution.Source != SourceOverrideFixed {
		t.Fatalf("expected source override_fixed, got %s", resolution.Source)
	}
	if resolution.OverrideID != "o1" {
		t.Fatalf("expected override o1, got %s", resolution.OverrideID)
	}
}

// Scenario: a 5% cap bounds the increase over the base (80000 -> 84000) even
// though a standard increase to 90000 is on record.
func TestResolvePercentageCapBoundsAgainstBase(t *testing.T) {
	increases := []RateChangeRequest{
		{ID: "r1", ProposedRate: 90000, EffectiveFrom: date(2024, 1, 1), Stage: StageApproved},
	}
	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverridePercentageCap,
		PercentageCap: floatPtr(5),
		EffectiveFrom: date(2024, 1, 1),
		Stage:         StageApproved,
	}}

	resolution := Resolve(80000, increases, overrides, date(2024, 2, 1))
	if resolution.Rate != 84000 {
		t.Fatalf("expected capped rate 84000, got %v", resolution.Rate)
	}
	if resolution.Source != SourceOverrideCap {
		t.Fatalf("expected source override_cap, got %s", resolution.Source)
	}
}

func TestResolveCapNeverExceedsLimit(t *testing.T) {
	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverridePercentageCap,
		PercentageCap: floatPtr(7.5),
		EffectiveFrom: date(2024, 1, 1),
		Stage:         StageApproved,
	}}
	limit := 86000.0 // 80000 plus 7.5%

	for _, proposed := range []float64{80001, 86000, 90000, 250000} {
		increases := []RateChangeRequest{
			{ID: "r1", ProposedRate: proposed, EffectiveFrom: date(2024, 1, 1), Stage: StageApproved},
		}
		resolution := Resolve(80000, increases, overrides, date(2024, 6, 1))
		if resolution.Rate > limit {
			t.Fatalf("proposed %v resolved to %v which exceeds cap limit %v", proposed, resolution.Rate, limit)
		}
	}
}

func TestResolveCapLeavesSmallerCandidateAlone(t *testing.T) {
	increases := []RateChangeRequest{
		{ID: "r1", ProposedRate: 81000, EffectiveFrom: date(2024, 1, 1), Stage: StageApproved},
	}
	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverridePercentageCap,
		PercentageCap: floatPtr(5),
		EffectiveFrom: date(2024, 1, 1),
		Stage:         StageApproved,
	}}

	resolution := Resolve(80000, increases, overrides, date(2024, 6, 1))
	if resolution.Rate != 81000 {
		t.Fatalf("expected increase below the cap to pass through, got %v", resolution.Rate)
	}
}

func TestResolveNoIncreaseDiscardsStandardIncrease(t *testing.T) {
	increases := []RateChangeRequest{
		{ID: "r1", ProposedRate: 90000, EffectiveFrom: date(2024, 1, 1), Stage: StageApproved},
	}
	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverrideNoIncrease,
		EffectiveFrom: date(2024, 1, 1),
		Stage:         StageApproved,
	}}

	resolution := Resolve(80000, increases, overrides, date(2024, 6, 1))
	if resolution.Rate != 80000 {
		t.Fatalf("expected base 80000 under no_increase, got %v", resolution.Rate)
	}
	if resolution.Source != SourceOverrideNoIncrease {
		t.Fatalf("expected source override_no_increase, got %s", resolution.Source)
	}
}

func TestResolveWindowBoundaries(t *testing.T) {
	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverrideFixedRate,
		FixedRate:     floatPtr(70000),
		EffectiveFrom: date(2024, 1, 1),
		EffectiveTo:   datePtr(2024, 7, 1),
		Stage:         StageApproved,
	}}

	cases := []struct {
		at   time.Time
		want float64
	}{
		{date(2023, 12, 31), 80000}, // before the window
		{date(2024, 1, 1), 70000},   // inclusive start
		{date(2024, 6, 30), 70000},  // last covered day
		{date(2024, 7, 1), 80000},   // exclusive end
	}
	for _, tc := range cases {
		resolution := Resolve(80000, nil, overrides, tc.at)
		if resolution.Rate != tc.want {
			t.Fatalf("at %s expected %v, got %v", tc.at.Format("2006-01-02"), tc.want, resolution.Rate)
		}
	}
}

func TestResolveStaleOverlapPrefersLatestEffectiveFrom(t *testing.T) {
	overrides := []RateOverride{
		{
			ID:            "older",
			Type:          OverrideFixedRate,
			FixedRate:     floatPtr(70000),
			EffectiveFrom: date(2024, 1, 1),
			Stage:         StageApproved,
		},
		{
			ID:            "newer",
			Type:          OverrideFixedRate,
			FixedRate:     floatPtr(72000),
			EffectiveFrom: date(2024, 3, 1),
			Stage:         StageApproved,
		},
	}

	resolution := Resolve(80000, nil, overrides, date(2024, 6, 1))
	if resolution.Rate != 72000 {
		t.Fatalf("expected the override with the latest effectiveFrom to win, got %v", resolution.Rate)
	}
	if resolution.OverrideID != "newer" {
		t.Fatalf("expected override newer, got %s", resolution.OverrideID)
	}
	if len(resolution.Warnings) == 0 {
		t.Fatal("expected a warning about overlapping approved overrides")
	}
}

func TestResolveIdempotent(t *testing.T) {
	increases := []RateChangeRequest{
		{ID: "r1", ProposedRate: 90000, EffectiveFrom: date(2024, 1, 1), Stage: StageApproved},
	}
	overrides := []RateOverride{{
		ID:            "o1",
		Type:          OverridePercentageCap,
		PercentageCap: floatPtr(5),
		EffectiveFrom: date(2024, 1, 1),
		Stage:         StageApproved,
	}}

	first := Resolve(80000, increases, overrides, date(2024, 2, 1))
	second := Resolve(80000, increases, overrides, date(2024, 2, 1))
	if first.Rate != second.Rate || first.Source != second.Source || first.OverrideID != second.OverrideID {
		t.Fatalf("resolution is not idempotent: %+v vs %+v", first, second)
	}
}
