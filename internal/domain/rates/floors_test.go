package rates

import "testing"

func TestComposeSumsFloorRents(t *testing.T) {
	floors := []Floor{
		{ID: "f1", Level: 0, Name: "Ground", Area: 100, Rate: 500},
		{ID: "f2", Level: 1, Name: "Mezzanine", Area: 50, Rate: 600},
	}

	composition := Compose(floors, 0, 0)
	if composition.BaseRent != 80000 {
		t.Fatalf("expected base rent 80000, got %v", composition.BaseRent)
	}
	if composition.BaseArea != 150 {
		t.Fatalf("expected base area 150, got %v", composition.BaseArea)
	}
	if len(composition.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", composition.Warnings)
	}
}

func TestComposeInvariantUnderReordering(t *testing.T) {
	forward := []Floor{
		{ID: "f1", Area: 120.5, Rate: 450.25},
		{ID: "f2", Area: 80, Rate: 510},
		{ID: "f3", Area: 33.3, Rate: 600},
	}
	reversed := []Floor{forward[2], forward[0], forward[1]}

	a := Compose(forward, 0, 0)
	b := Compose(reversed, 0, 0)
	if a.BaseRent != b.BaseRent {
		t.Fatalf("base rent depends on floor order: %v vs %v", a.BaseRent, b.BaseRent)
	}
	if a.BaseArea != b.BaseArea {
		t.Fatalf("base area depends on floor order: %v vs %v", a.BaseArea, b.BaseArea)
	}
}

func TestComposeFallsBackToUnitTotals(t *testing.T) {
	composition := Compose(nil, 200, 95000)
	if composition.BaseArea != 200 {
		t.Fatalf("expected fallback area 200, got %v", composition.BaseArea)
	}
	if composition.BaseRent != 95000 {
		t.Fatalf("expected fallback rent 95000, got %v", composition.BaseRent)
	}
}

func TestComposeRetainsZeroAreaFloorWithWarning(t *testing.T) {
	floors := []Floor{
		{ID: "f1", Name: "Ground", Area: 100, Rate: 500},
		{ID: "f2", Name: "Storage", Area: 0, Rate: 400},
	}

	composition := Compose(floors, 0, 0)
	if composition.BaseRent != 50000 {
		t.Fatalf("expected zero-area floor to contribute nothing, got %v", composition.BaseRent)
	}
	if len(composition.Floors) != 2 {
		t.Fatalf("expected both floors retained, got %d", len(composition.Floors))
	}
	if len(composition.Warnings) != 1 {
		t.Fatalf("expected one data-quality warning, got %v", composition.Warnings)
	}
}

func TestComposeIsPure(t *testing.T) {
	floors := []Floor{{ID: "f1", Area: 10, Rate: 100}}
	first := Compose(floors, 0, 0)
	second := Compose(floors, 0, 0)
	if first.BaseRent != second.BaseRent || first.BaseArea != second.BaseArea {
		t.Fatalf("repeated composition differs: %+v vs %+v", first, second)
	}
	if floors[0].Area != 10 || floors[0].Rate != 100 {
		t.Fatal("compose mutated its input")
	}
}

func TestFloorRentAvoidsBinaryDrift(t *testing.T) {
	// 0.1 * 3 style inputs; decimal math keeps the product exact.
	floor := Floor{Area: 33.3, Rate: 100.1}
	if got := floor.Rent(); got != 3333.33 {
		t.Fatalf("expected 3333.33, got %v", got)
	}
}
