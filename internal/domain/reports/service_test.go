package reports

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"pms/internal/domain/rates"
)

func testStatement() Statement {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	fixed := 75000.0
	return Statement{
		Header: StatementHeader{
			LeaseUnitID:  "lu-1",
			PropertyName: "Harbor Point",
			PropertyCode: "HP",
			UnitName:     "Suite 400",
			TenantName:   "Acme Trading",
		},
		Resolution: rates.Resolution{Rate: 75000, Source: rates.SourceOverrideFixed, Base: 80000, OverrideID: "ovr-1"},
		History: rates.History{
			LeaseUnitID: "lu-1",
			Requests: []rates.RateChangeRequest{{
				ID: "req-1", LeaseUnitID: "lu-1", ProposedRate: 85000,
				EffectiveFrom: from, Stage: rates.StageRejected, CreatedAt: from,
			}},
			Overrides: []rates.RateOverride{{
				ID: "ovr-1", LeaseUnitID: "lu-1", Type: rates.OverrideFixedRate, FixedRate: &fixed,
				EffectiveFrom: from, EffectiveTo: &to, Stage: rates.StageApproved, CreatedAt: from,
			}},
			Decisions: []rates.Decision{{
				ID: "dec-1", SubjectType: rates.SubjectOverride, SubjectID: "ovr-1",
				Stage: rates.DecisionFinal, DeciderID: "user-9", Outcome: rates.OutcomeApproved, DecidedAt: from,
			}},
		},
		Deciders:    map[string]string{"user-9": "Dana Approver"},
		GeneratedAt: from,
	}
}

func TestWriteCSV(t *testing.T) {
	svc := NewService(nil, nil)

	var buf bytes.Buffer
	if err := svc.WriteCSV(&buf, testStatement()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// header + request + override + decision
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[1][0] != "rate_change_request" || rows[1][2] != "85000.00" {
		t.Fatalf("unexpected request row: %v", rows[1])
	}
	if rows[2][0] != "rate_override" || !strings.Contains(rows[2][2], "fixed_rate 75000.00") {
		t.Fatalf("unexpected override row: %v", rows[2])
	}
	if rows[2][4] != "2026-01-01" {
		t.Fatalf("expected effectiveTo in override row, got %v", rows[2])
	}
	if !strings.Contains(rows[3][2], "Dana Approver") {
		t.Fatalf("expected decider name in decision row: %v", rows[3])
	}
}

func TestWritePDFProducesDocument(t *testing.T) {
	svc := NewService(nil, nil)

	var buf bytes.Buffer
	if err := svc.WritePDF(&buf, testStatement()); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatal("expected a PDF header")
	}
}
