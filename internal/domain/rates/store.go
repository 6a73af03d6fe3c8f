package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const overrideColumns = `
  id, lease_unit_id, override_type, fixed_rate, percentage_cap,
  effective_from, effective_to, reason, requested_by, stage, created_at, updated_at
`

const changeRequestColumns = `
  id, lease_unit_id, proposed_rate, effective_from, reason,
  requested_by, stage, created_at, updated_at
`

func scanOverride(row pgx.Row) (RateOverride, error) {
	var o RateOverride
	err := row.Scan(&o.ID, &o.LeaseUnitID, &o.Type, &o.FixedRate, &o.PercentageCap,
		&o.EffectiveFrom, &o.EffectiveTo, &o.Reason, &o.RequestedBy, &o.Stage, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanChangeRequest(row pgx.Row) (RateChangeRequest, error) {
	var r RateChangeRequest
	err := row.Scan(&r.ID, &r.LeaseUnitID, &r.ProposedRate, &r.EffectiveFrom, &r.Reason,
		&r.RequestedBy, &r.Stage, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) CreateOverride(ctx context.Context, input NewOverride) (RateOverride, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO rate_overrides (lease_unit_id, override_type, fixed_rate, percentage_cap, effective_from, effective_to, reason, requested_by, stage)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING `+overrideColumns+`
  `, input.LeaseUnitID, input.Type, input.FixedRate, input.PercentageCap, input.EffectiveFrom, input.EffectiveTo, input.Reason, input.RequestedBy, StagePendingRecommendation)
	return scanOverride(row)
}

func (s *Store) CreateChangeRequest(ctx context.Context, input NewChangeRequest) (RateChangeRequest, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO rate_change_requests (lease_unit_id, proposed_rate, effective_from, reason, requested_by, stage)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING `+changeRequestColumns+`
  `, input.LeaseUnitID, input.ProposedRate, input.EffectiveFrom, input.Reason, input.RequestedBy, StagePendingRecommendation)
	return scanChangeRequest(row)
}

func (s *Store) GetOverride(ctx context.Context, id string) (RateOverride, error) {
	o, err := scanOverride(s.DB.QueryRow(ctx, `
    SELECT `+overrideColumns+`
    FROM rate_overrides
    WHERE id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (s *Store) GetChangeRequest(ctx context.Context, id string) (RateChangeRequest, error) {
	r, err := scanChangeRequest(s.DB.QueryRow(ctx, `
    SELECT `+changeRequestColumns+`
    FROM rate_change_requests
    WHERE id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// UpdatePendingOverride mutates an override's negotiable fields. The stage
// guard in the WHERE clause keeps terminal records immutable.
func (s *Store) UpdatePendingOverride(ctx context.Context, id string, input NewOverride) (RateOverride, error) {
	row := s.DB.QueryRow(ctx, `
    UPDATE rate_overrides
    SET override_type = $2, fixed_rate = $3, percentage_cap = $4,
        effective_from = $5, effective_to = $6, reason = $7, updated_at = now()
    WHERE id = $1 AND stage IN ($8, $9)
    RETURNING `+overrideColumns+`
  `, id, input.Type, input.FixedRate, input.PercentageCap, input.EffectiveFrom, input.EffectiveTo, input.Reason,
		StagePendingRecommendation, StagePendingFinal)
	o, err := scanOverride(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetOverride(ctx, id)
		if getErr != nil {
			return o, getErr
		}
		return o, &InvalidStateError{ID: id, Stage: current.Stage}
	}
	return o, err
}

func (s *Store) ListOverridesByStage(ctx context.Context, stage Stage) ([]RateOverride, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+overrideColumns+`
    FROM rate_overrides
    WHERE stage = $1
    ORDER BY created_at
  `, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListChangeRequestsByStage(ctx context.Context, stage Stage) ([]RateChangeRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+changeRequestColumns+`
    FROM rate_change_requests
    WHERE stage = $1
    ORDER BY created_at
  `, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateChangeRequest
	for rows.Next() {
		r, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ApprovedOverrides(ctx context.Context, leaseUnitID string) ([]RateOverride, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+overrideColumns+`
    FROM rate_overrides
    WHERE lease_unit_id = $1 AND stage = $2
    ORDER BY effective_from
  `, leaseUnitID, StageApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ApprovedChangeRequests(ctx context.Context, leaseUnitID string) ([]RateChangeRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+changeRequestColumns+`
    FROM rate_change_requests
    WHERE lease_unit_id = $1 AND stage = $2
    ORDER BY effective_from
  `, leaseUnitID, StageApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateChangeRequest
	for rows.Next() {
		r, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) OverridesForLeaseUnit(ctx context.Context, leaseUnitID string) ([]RateOverride, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+overrideColumns+`
    FROM rate_overrides
    WHERE lease_unit_id = $1
    ORDER BY created_at
  `, leaseUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ChangeRequestsForLeaseUnit(ctx context.Context, leaseUnitID string) ([]RateChangeRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+changeRequestColumns+`
    FROM rate_change_requests
    WHERE lease_unit_id = $1
    ORDER BY created_at
  `, leaseUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateChangeRequest
	for rows.Next() {
		r, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListDecisions(ctx context.Context, subjectType SubjectType, subjectID string) ([]Decision, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, subject_type, subject_id, stage, decider_id, outcome, comment, decided_at
    FROM approval_decisions
    WHERE subject_type = $1 AND subject_id = $2
    ORDER BY decided_at
  `, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.SubjectType, &d.SubjectID, &d.Stage, &d.DeciderID, &d.Outcome, &d.Comment, &d.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ApproverByID(ctx context.Context, userID string) (Approver, error) {
	var a Approver
	err := s.DB.QueryRow(ctx, `
    SELECT id, is_recommending_approver, is_final_approver
    FROM users
    WHERE id = $1 AND is_active = true
  `, userID).Scan(&a.ID, &a.Recommending, &a.Final)
	if errors.Is(err, pgx.ErrNoRows) {
		return Approver{ID: userID}, nil
	}
	return a, err
}

func (s *Store) UserIDsWithCapability(ctx context.Context, capability Capability) ([]string, error) {
	column := "is_recommending_approver"
	if capability == CapabilityFinal {
		column = "is_final_approver"
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id FROM users WHERE `+column+` = true AND is_active = true
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LeaseUnitRent is everything the resolver needs to establish a lease unit's
// base rent: the unit's floors with any per-lease floor rates overlaid, plus
// the stored fallbacks for units without floor records.
type LeaseUnitRent struct {
	LeaseUnitID string
	UnitID      string
	RentAmount  float64
	UnitArea    float64
	UnitRent    float64
	Floors      []Floor
}

func (s *Store) LeaseUnitRent(ctx context.Context, leaseUnitID string) (LeaseUnitRent, error) {
	var out LeaseUnitRent
	err := s.DB.QueryRow(ctx, `
    SELECT lu.id, lu.unit_id, lu.rent_amount, u.total_area, u.total_rent
    FROM lease_units lu
    JOIN units u ON lu.unit_id = u.id
    WHERE lu.id = $1
  `, leaseUnitID).Scan(&out.LeaseUnitID, &out.UnitID, &out.RentAmount, &out.UnitArea, &out.UnitRent)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}

	rows, err := s.DB.Query(ctx, `
    SELECT f.id, f.level, f.name, f.area, COALESCE(lr.rate, f.rate)
    FROM unit_floors f
    LEFT JOIN lease_unit_floor_rates lr ON lr.unit_floor_id = f.id AND lr.lease_unit_id = $1
    WHERE f.unit_id = $2
    ORDER BY f.level
  `, leaseUnitID, out.UnitID)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var f Floor
		if err := rows.Scan(&f.ID, &f.Level, &f.Name, &f.Area, &f.Rate); err != nil {
			return out, err
		}
		out.Floors = append(out.Floors, f)
	}
	return out, rows.Err()
}

// Base computes the lease unit's base rent: floor composition when floors are
// tracked, the contracted rent amount otherwise.
func (r LeaseUnitRent) Base() Composition {
	fallbackRent := r.RentAmount
	if fallbackRent == 0 {
		fallbackRent = r.UnitRent
	}
	return Compose(r.Floors, r.UnitArea, fallbackRent)
}

// Advance implements TransitionStore. The stage check and the update happen
// in one conditional statement, so of two racing approvers exactly one
// succeeds and the other observes the guard failure as *InvalidStateError.
// Approving an override additionally locks its own row and its approved
// siblings and re-validates the no-overlap invariant against the persisted
// windows inside the same transaction.
func (s *Store) Advance(ctx context.Context, subject Subject, from, to Stage, decision Decision) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := "rate_change_requests"
	if subject.SubjectType() == SubjectOverride {
		table = "rate_overrides"
	}

	if subject.SubjectType() == SubjectOverride && to == StageApproved {
		candidate, err := lockOverride(ctx, tx, subject.SubjectID())
		if err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, candidate); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
    UPDATE %s SET stage = $1, updated_at = now() WHERE id = $2 AND stage = $3
  `, table), to, subject.SubjectID(), from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current Stage
		if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT stage FROM %s WHERE id = $1", table), subject.SubjectID()).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return &InvalidStateError{ID: subject.SubjectID(), Stage: current}
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO approval_decisions (subject_type, subject_id, stage, decider_id, outcome, comment, decided_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, decision.SubjectType, decision.SubjectID, decision.Stage, decision.DeciderID, decision.Outcome, decision.Comment, decision.DecidedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// lockOverride re-reads the candidate's window under a row lock. The check
// below must run against the persisted dates, not whatever the caller loaded
// before the transaction began; the lock also serializes a concurrent window
// edit against this approval.
func lockOverride(ctx context.Context, tx pgx.Tx, id string) (RateOverride, error) {
	var o RateOverride
	err := tx.QueryRow(ctx, `
    SELECT id, lease_unit_id, effective_from, effective_to
    FROM rate_overrides
    WHERE id = $1
    FOR UPDATE
  `, id).Scan(&o.ID, &o.LeaseUnitID, &o.EffectiveFrom, &o.EffectiveTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

// checkOverlap locks the approved overrides for the same lease unit and
// rejects the approval if any effective window intersects the candidate's.
func checkOverlap(ctx context.Context, tx pgx.Tx, candidate RateOverride) error {
	rows, err := tx.Query(ctx, `
    SELECT id, effective_from, effective_to
    FROM rate_overrides
    WHERE lease_unit_id = $1 AND stage = $2 AND id <> $3
    FOR UPDATE
  `, candidate.LeaseUnitID, StageApproved, candidate.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var conflicts []string
	for rows.Next() {
		var sibling RateOverride
		if err := rows.Scan(&sibling.ID, &sibling.EffectiveFrom, &sibling.EffectiveTo); err != nil {
			return err
		}
		if candidate.Overlaps(sibling) {
			conflicts = append(conflicts, sibling.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{ID: candidate.ID, ConflictsWith: conflicts}
	}
	return nil
}
