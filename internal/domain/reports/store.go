package reports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/rates"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// StatementHeader is the identifying context printed at the top of a
// rate-history statement.
type StatementHeader struct {
	LeaseUnitID  string `json:"leaseUnitId"`
	PropertyName string `json:"propertyName"`
	PropertyCode string `json:"propertyCode"`
	UnitName     string `json:"unitName"`
	TenantName   string `json:"tenantName"`
}

func (s *Store) StatementHeader(ctx context.Context, leaseUnitID string) (StatementHeader, error) {
	var h StatementHeader
	err := s.DB.QueryRow(ctx, `
    SELECT lu.id, p.name, p.code, u.name, t.name
    FROM lease_units lu
    JOIN units u ON lu.unit_id = u.id
    JOIN properties p ON u.property_id = p.id
    JOIN leases l ON lu.lease_id = l.id
    JOIN tenants t ON l.tenant_id = t.id
    WHERE lu.id = $1
  `, leaseUnitID).Scan(&h.LeaseUnitID, &h.PropertyName, &h.PropertyCode, &h.UnitName, &h.TenantName)
	return h, err
}

// DeciderNames maps user ids in the decision trail to display names.
func (s *Store) DeciderNames(ctx context.Context, decisions []rates.Decision) (map[string]string, error) {
	ids := make([]string, 0, len(decisions))
	seen := map[string]bool{}
	for _, d := range decisions {
		if !seen[d.DeciderID] {
			seen[d.DeciderID] = true
			ids = append(ids, d.DeciderID)
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := s.DB.Query(ctx, "SELECT id, full_name FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// Summary is the back-office dashboard counters.
type Summary struct {
	Properties           int `json:"properties"`
	Units                int `json:"units"`
	ActiveLeases         int `json:"activeLeases"`
	PendingRecommend     int `json:"pendingRecommendation"`
	PendingFinal         int `json:"pendingFinal"`
	ApprovedOverrides    int `json:"approvedOverrides"`
	ApprovedRateRequests int `json:"approvedRateRequests"`
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	err := s.DB.QueryRow(ctx, `
    SELECT
      (SELECT COUNT(1) FROM properties),
      (SELECT COUNT(1) FROM units),
      (SELECT COUNT(1) FROM leases WHERE status = 'active'),
      (SELECT COUNT(1) FROM rate_overrides WHERE stage = $1) +
        (SELECT COUNT(1) FROM rate_change_requests WHERE stage = $1),
      (SELECT COUNT(1) FROM rate_overrides WHERE stage = $2) +
        (SELECT COUNT(1) FROM rate_change_requests WHERE stage = $2),
      (SELECT COUNT(1) FROM rate_overrides WHERE stage = $3),
      (SELECT COUNT(1) FROM rate_change_requests WHERE stage = $3)
  `, rates.StagePendingRecommendation, rates.StagePendingFinal, rates.StageApproved).
		Scan(&out.Properties, &out.Units, &out.ActiveLeases,
			&out.PendingRecommend, &out.PendingFinal,
			&out.ApprovedOverrides, &out.ApprovedRateRequests)
	return out, err
}
