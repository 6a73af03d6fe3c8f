package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Floor is one horizontal slice of a unit. Rate is currency per square meter.
type Floor struct {
	ID    string  `json:"id"`
	Level int     `json:"level"`
	Name  string  `json:"name"`
	Area  float64 `json:"area"`
	Rate  float64 `json:"rate"`
}

// Rent is the floor's contribution to the unit's base rent.
func (f Floor) Rent() float64 {
	if f.Area <= 0 {
		return 0
	}
	rent, _ := decimal.NewFromFloat(f.Area).Mul(decimal.NewFromFloat(f.Rate)).Float64()
	return rent
}

// Composition is the floor-level breakdown of a unit's base rent.
type Composition struct {
	BaseArea float64  `json:"baseArea"`
	BaseRent float64  `json:"baseRent"`
	Floors   []Floor  `json:"floors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Compose sums area and area×rate over the given floors. Floors with a
// non-positive area contribute nothing but are retained in the result and
// flagged as data-quality warnings. An empty floor set falls back to the
// unit's stored totals. Pure function of its inputs.
func Compose(floors []Floor, fallbackArea, fallbackRent float64) Composition {
	if len(floors) == 0 {
		return Composition{BaseArea: fallbackArea, BaseRent: fallbackRent}
	}

	area := decimal.Zero
	rent := decimal.Zero
	var warnings []string
	for _, floor := range floors {
		if floor.Area <= 0 {
			warnings = append(warnings, fmt.Sprintf("floor %q has non-positive area %v and contributes no rent", floorLabel(floor), floor.Area))
			continue
		}
		a := decimal.NewFromFloat(floor.Area)
		area = area.Add(a)
		rent = rent.Add(a.Mul(decimal.NewFromFloat(floor.Rate)))
	}

	baseArea, _ := area.Float64()
	baseRent, _ := rent.Float64()
	out := Composition{
		BaseArea: baseArea,
		BaseRent: baseRent,
		Floors:   make([]Floor, len(floors)),
		Warnings: warnings,
	}
	copy(out.Floors, floors)
	return out
}

func floorLabel(f Floor) string {
	if f.Name != "" {
		return f.Name
	}
	if f.ID != "" {
		return f.ID
	}
	return fmt.Sprintf("level %d", f.Level)
}
