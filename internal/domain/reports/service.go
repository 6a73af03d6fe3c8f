package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"pms/internal/domain/rates"
)

type Service struct {
	Store *Store
	Rates *rates.Service
}

func NewService(store *Store, ratesSvc *rates.Service) *Service {
	return &Service{Store: store, Rates: ratesSvc}
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.Store.Summary(ctx)
}

// Statement bundles everything a rate-history export needs.
type Statement struct {
	Header      StatementHeader
	Resolution  rates.Resolution
	History     rates.History
	Deciders    map[string]string
	GeneratedAt time.Time
}

func (s *Service) Statement(ctx context.Context, leaseUnitID string, at time.Time) (Statement, error) {
	header, err := s.Store.StatementHeader(ctx, leaseUnitID)
	if err != nil {
		return Statement{}, err
	}
	resolution, err := s.Rates.ResolveEffectiveRate(ctx, leaseUnitID, at)
	if err != nil {
		return Statement{}, err
	}
	history, err := s.Rates.History(ctx, leaseUnitID)
	if err != nil {
		return Statement{}, err
	}
	deciders, err := s.Store.DeciderNames(ctx, history.Decisions)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Header:      header,
		Resolution:  resolution,
		History:     history,
		Deciders:    deciders,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// WritePDF renders the statement as a PDF document.
func (s *Service) WritePDF(w io.Writer, st Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Lease Rate Statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Property: %s (%s)", st.Header.PropertyName, st.Header.PropertyCode))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Unit: %s", st.Header.UnitName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Tenant: %s", st.Header.TenantName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", st.GeneratedAt.Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Effective rate")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Rate: %.2f (source: %s, base: %.2f)", st.Resolution.Rate, st.Resolution.Source, st.Resolution.Base))
	pdf.Ln(7)
	for _, warning := range st.Resolution.Warnings {
		pdf.Cell(0, 8, fmt.Sprintf("Warning: %s", warning))
		pdf.Ln(7)
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Rate change requests")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	if len(st.History.Requests) == 0 {
		pdf.Cell(0, 7, "none")
		pdf.Ln(7)
	}
	for _, r := range st.History.Requests {
		pdf.Cell(0, 7, fmt.Sprintf("%s  proposed %.2f  effective %s  [%s]",
			r.CreatedAt.Format("2006-01-02"), r.ProposedRate, r.EffectiveFrom.Format("2006-01-02"), r.Stage))
		pdf.Ln(6)
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Overrides")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	if len(st.History.Overrides) == 0 {
		pdf.Cell(0, 7, "none")
		pdf.Ln(7)
	}
	for _, o := range st.History.Overrides {
		pdf.Cell(0, 7, fmt.Sprintf("%s  %s  %s  [%s]",
			o.CreatedAt.Format("2006-01-02"), o.Type, overrideValue(o), o.Stage))
		pdf.Ln(6)
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Decisions")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	if len(st.History.Decisions) == 0 {
		pdf.Cell(0, 7, "none")
		pdf.Ln(7)
	}
	for _, d := range st.History.Decisions {
		name := st.Deciders[d.DeciderID]
		if name == "" {
			name = d.DeciderID
		}
		pdf.Cell(0, 7, fmt.Sprintf("%s  %s  %s by %s",
			d.DecidedAt.Format("2006-01-02"), d.Stage, d.Outcome, name))
		pdf.Ln(6)
	}

	return pdf.Output(w)
}

// WriteCSV renders the statement's governance rows as CSV.
func (s *Service) WriteCSV(w io.Writer, st Statement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"kind", "date", "detail", "effectiveFrom", "effectiveTo", "stage"}); err != nil {
		return err
	}
	for _, r := range st.History.Requests {
		if err := cw.Write([]string{
			"rate_change_request",
			r.CreatedAt.Format("2006-01-02"),
			strconv.FormatFloat(r.ProposedRate, 'f', 2, 64),
			r.EffectiveFrom.Format("2006-01-02"),
			"",
			string(r.Stage),
		}); err != nil {
			return err
		}
	}
	for _, o := range st.History.Overrides {
		to := ""
		if o.EffectiveTo != nil {
			to = o.EffectiveTo.Format("2006-01-02")
		}
		if err := cw.Write([]string{
			"rate_override",
			o.CreatedAt.Format("2006-01-02"),
			string(o.Type) + " " + overrideValue(o),
			o.EffectiveFrom.Format("2006-01-02"),
			to,
			string(o.Stage),
		}); err != nil {
			return err
		}
	}
	for _, d := range st.History.Decisions {
		name := st.Deciders[d.DeciderID]
		if name == "" {
			name = d.DeciderID
		}
		if err := cw.Write([]string{
			"decision",
			d.DecidedAt.Format("2006-01-02"),
			fmt.Sprintf("%s %s by %s", d.Stage, d.Outcome, name),
			"", "", "",
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func overrideValue(o rates.RateOverride) string {
	switch o.Type {
	case rates.OverrideFixedRate:
		if o.FixedRate != nil {
			return strconv.FormatFloat(*o.FixedRate, 'f', 2, 64)
		}
	case rates.OverridePercentageCap:
		if o.PercentageCap != nil {
			return strconv.FormatFloat(*o.PercentageCap, 'f', 2, 64) + "%"
		}
	}
	return ""
}
