package rates

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is the rate in force for a lease unit at a point in time and
// where it came from.
type Resolution struct {
	Rate       float64    `json:"rate"`
	Source     RateSource `json:"source"`
	Base       float64    `json:"base"`
	OverrideID string     `json:"overrideId,omitempty"`
	RequestID  string     `json:"requestId,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// Resolve determines the effective rate from the base rent, the approved
// standard increases, and the approved overrides for a lease unit. It is a
// pure function: callers choose the evaluation date, so historical and future
// dates resolve the same way as "now".
//
// A percentage cap bounds the increase over the base, not over the previous
// standard rate, so stacked increases cannot creep past the cap. Overlapping
// approved overrides are a data-integrity violation prevented at finalize
// time; if stale data still contains one, the override with the most recent
// effectiveFrom wins and a warning is surfaced instead of an error.
func Resolve(base float64, increases []RateChangeRequest, overrides []RateOverride, at time.Time) Resolution {
	out := Resolution{Rate: base, Source: SourceBase, Base: base}

	if increase, ok := latestIncrease(increases, at); ok {
		out.Rate = increase.ProposedRate
		out.Source = SourceStandardIncrease
		out.RequestID = increase.ID
	}

	active := activeOverrides(overrides, at)
	if len(active) == 0 {
		return out
	}
	if len(active) > 1 {
		ids := make([]string, 0, len(active)-1)
		for _, o := range active[1:] {
			ids = append(ids, o.ID)
		}
		out.Warnings = append(out.Warnings, fmt.Sprintf("multiple overrides active at %s; using %s, ignoring %v", at.Format("2006-01-02"), active[0].ID, ids))
	}

	winner := active[0]
	out.OverrideID = winner.ID
	switch winner.Type {
	case OverrideFixedRate:
		out.Rate = *winner.FixedRate
		out.Source = SourceOverrideFixed
	case OverridePercentageCap:
		limit := capLimit(base, *winner.PercentageCap)
		if out.Rate > limit {
			out.Rate = limit
		}
		out.Source = SourceOverrideCap
	case OverrideNoIncrease:
		out.Rate = base
		out.Source = SourceOverrideNoIncrease
	}
	return out
}

// latestIncrease picks the approved standard increase in force at the given
// date: the one with the greatest effectiveFrom not after at, most recently
// created on a tie.
func latestIncrease(increases []RateChangeRequest, at time.Time) (RateChangeRequest, bool) {
	var best RateChangeRequest
	found := false
	for _, r := range increases {
		if r.Stage != StageApproved || r.EffectiveFrom.After(at) {
			continue
		}
		if !found || r.EffectiveFrom.After(best.EffectiveFrom) ||
			(r.EffectiveFrom.Equal(best.EffectiveFrom) && r.CreatedAt.After(best.CreatedAt)) {
			best = r
			found = true
		}
	}
	return best, found
}

// activeOverrides returns the approved overrides covering at, best first:
// most recent effectiveFrom, then most recently created.
func activeOverrides(overrides []RateOverride, at time.Time) []RateOverride {
	var active []RateOverride
	for _, o := range overrides {
		if o.ActiveAt(at) {
			active = append(active, o)
		}
	}
	for i := 1; i < len(active); i++ {
		for j := i; j > 0 && overridePrecedes(active[j], active[j-1]); j-- {
			active[j], active[j-1] = active[j-1], active[j]
		}
	}
	return active
}

func overridePrecedes(a, b RateOverride) bool {
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
		return a.EffectiveFrom.After(b.EffectiveFrom)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func capLimit(base, percentageCap float64) float64 {
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(percentageCap).Div(decimal.NewFromInt(100)))
	limit, _ := decimal.NewFromFloat(base).Mul(factor).Float64()
	return limit
}
