package shared

import (
	"testing"
	"time"
)

func TestParseDateAcceptsBothFormats(t *testing.T) {
	day, err := ParseDate("2025-03-01")
	if err != nil {
		t.Fatalf("plain date: %v", err)
	}
	if day.Year() != 2025 || day.Month() != time.March || day.Day() != 1 {
		t.Fatalf("unexpected date: %v", day)
	}

	stamp, err := ParseDate("2025-03-01T10:30:00Z")
	if err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if stamp.Hour() != 10 {
		t.Fatalf("unexpected time: %v", stamp)
	}

	if _, err := ParseDate("01/03/2025"); err == nil {
		t.Fatal("expected slash format to be rejected")
	}
}

func TestValidatorCollectsAndSortsIssues(t *testing.T) {
	v := NewValidator()
	v.Required("name", "", "is required")
	v.Required("code", "  ", "is required")
	v.Enum("status", "bogus", []string{"vacant", "occupied"}, "must be vacant or occupied")

	if !v.HasIssues() {
		t.Fatal("expected issues")
	}
	issues := v.Issues()
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	if issues[0].Field != "code" {
		t.Fatalf("expected sorted issues, first was %q", issues[0].Field)
	}
}

func TestValidatorDateOrder(t *testing.T) {
	v := NewValidator()
	start, _ := ParseDate("2025-06-01")
	end, _ := ParseDate("2025-05-01")
	v.DateOrder("startDate", start, "endDate", end)
	if !v.HasIssues() {
		t.Fatal("expected reversed dates to be rejected")
	}

	ok := NewValidator()
	ok.DateOrder("startDate", start, "endDate", start.AddDate(1, 0, 0))
	if ok.HasIssues() {
		t.Fatalf("unexpected issues: %+v", ok.Issues())
	}
}
