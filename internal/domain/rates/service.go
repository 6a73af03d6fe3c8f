package rates

import (
	"context"
	"time"
)

// Service is the lease rate governance engine: proposal intake, the shared
// approval workflow, and effective-rate resolution.
type Service struct {
	Store    *Store
	Workflow *Workflow
}

func NewService(store *Store) *Service {
	return &Service{Store: store, Workflow: NewWorkflow(store)}
}

func (s *Service) CreateOverride(ctx context.Context, input NewOverride) (RateOverride, error) {
	if err := input.Validate(); err != nil {
		return RateOverride{}, err
	}
	if _, err := s.Store.LeaseUnitRent(ctx, input.LeaseUnitID); err != nil {
		return RateOverride{}, err
	}
	return s.Store.CreateOverride(ctx, input)
}

func (s *Service) CreateChangeRequest(ctx context.Context, input NewChangeRequest) (RateChangeRequest, error) {
	if err := input.Validate(); err != nil {
		return RateChangeRequest{}, err
	}
	if _, err := s.Store.LeaseUnitRent(ctx, input.LeaseUnitID); err != nil {
		return RateChangeRequest{}, err
	}
	return s.Store.CreateChangeRequest(ctx, input)
}

// UpdateOverride amends a pending override. Terminal records are immutable;
// the store's stage guard reports *InvalidStateError for them.
func (s *Service) UpdateOverride(ctx context.Context, id string, input NewOverride) (RateOverride, error) {
	current, err := s.Store.GetOverride(ctx, id)
	if err != nil {
		return RateOverride{}, err
	}
	input.LeaseUnitID = current.LeaseUnitID
	input.RequestedBy = current.RequestedBy
	if err := input.Validate(); err != nil {
		return RateOverride{}, err
	}
	return s.Store.UpdatePendingOverride(ctx, id, input)
}

// PendingItem is one entry in an approver's queue, with the display context
// an approver needs to judge it.
type PendingItem struct {
	Kind          SubjectType        `json:"kind"`
	Override      *RateOverride      `json:"override,omitempty"`
	Request       *RateChangeRequest `json:"request,omitempty"`
	LeaseUnitID   string             `json:"leaseUnitId"`
	PropertyName  string             `json:"propertyName"`
	UnitName      string             `json:"unitName"`
	TenantName    string             `json:"tenantName"`
	RequestedName string             `json:"requestedByName"`
}

// ListPending returns the queue at the given stage for a user. It fails
// closed: a user without the stage's capability gets an empty list rather
// than an error, so queue existence is not leaked.
func (s *Service) ListPending(ctx context.Context, userID string, stage Stage) ([]PendingItem, error) {
	var required Capability
	switch stage {
	case StagePendingRecommendation:
		required = CapabilityRecommending
	case StagePendingFinal:
		required = CapabilityFinal
	default:
		return []PendingItem{}, nil
	}

	approver, err := s.Store.ApproverByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !approver.Holds(required) {
		return []PendingItem{}, nil
	}

	items, err := s.pendingOverrides(ctx, stage)
	if err != nil {
		return nil, err
	}
	requests, err := s.pendingChangeRequests(ctx, stage)
	if err != nil {
		return nil, err
	}
	return append(items, requests...), nil
}

func (s *Service) pendingOverrides(ctx context.Context, stage Stage) ([]PendingItem, error) {
	rows, err := s.Store.DB.Query(ctx, `
    SELECT o.id, o.lease_unit_id, o.override_type, o.fixed_rate, o.percentage_cap,
           o.effective_from, o.effective_to, o.reason, o.requested_by, o.stage, o.created_at, o.updated_at,
           p.name, u.name, t.name, req.full_name
    FROM rate_overrides o
    JOIN lease_units lu ON o.lease_unit_id = lu.id
    JOIN units u ON lu.unit_id = u.id
    JOIN properties p ON u.property_id = p.id
    JOIN leases l ON lu.lease_id = l.id
    JOIN tenants t ON l.tenant_id = t.id
    JOIN users req ON o.requested_by = req.id
    WHERE o.stage = $1
    ORDER BY o.created_at
  `, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PendingItem
	for rows.Next() {
		var o RateOverride
		var item PendingItem
		if err := rows.Scan(&o.ID, &o.LeaseUnitID, &o.Type, &o.FixedRate, &o.PercentageCap,
			&o.EffectiveFrom, &o.EffectiveTo, &o.Reason, &o.RequestedBy, &o.Stage, &o.CreatedAt, &o.UpdatedAt,
			&item.PropertyName, &item.UnitName, &item.TenantName, &item.RequestedName); err != nil {
			return nil, err
		}
		item.Kind = SubjectOverride
		item.Override = &o
		item.LeaseUnitID = o.LeaseUnitID
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Service) pendingChangeRequests(ctx context.Context, stage Stage) ([]PendingItem, error) {
	rows, err := s.Store.DB.Query(ctx, `
    SELECT r.id, r.lease_unit_id, r.proposed_rate, r.effective_from, r.reason,
           r.requested_by, r.stage, r.created_at, r.updated_at,
           p.name, u.name, t.name, req.full_name
    FROM rate_change_requests r
    JOIN lease_units lu ON r.lease_unit_id = lu.id
    JOIN units u ON lu.unit_id = u.id
    JOIN properties p ON u.property_id = p.id
    JOIN leases l ON lu.lease_id = l.id
    JOIN tenants t ON l.tenant_id = t.id
    JOIN users req ON r.requested_by = req.id
    WHERE r.stage = $1
    ORDER BY r.created_at
  `, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PendingItem
	for rows.Next() {
		var r RateChangeRequest
		var item PendingItem
		if err := rows.Scan(&r.ID, &r.LeaseUnitID, &r.ProposedRate, &r.EffectiveFrom, &r.Reason,
			&r.RequestedBy, &r.Stage, &r.CreatedAt, &r.UpdatedAt,
			&item.PropertyName, &item.UnitName, &item.TenantName, &item.RequestedName); err != nil {
			return nil, err
		}
		item.Kind = SubjectChangeRequest
		item.Request = &r
		item.LeaseUnitID = r.LeaseUnitID
		items = append(items, item)
	}
	return items, rows.Err()
}

// TransitionResult reports a completed stage transition.
type TransitionResult struct {
	Subject  Subject  `json:"subject"`
	Stage    Stage    `json:"stage"`
	Decision Decision `json:"decision"`
}

func (s *Service) Recommend(ctx context.Context, kind SubjectType, id, userID string, outcome Outcome, comment string) (TransitionResult, error) {
	return s.transition(ctx, kind, id, userID, ActionRecommend, outcome, comment)
}

func (s *Service) Finalize(ctx context.Context, kind SubjectType, id, userID string, outcome Outcome, comment string) (TransitionResult, error) {
	return s.transition(ctx, kind, id, userID, ActionFinalize, outcome, comment)
}

func (s *Service) transition(ctx context.Context, kind SubjectType, id, userID string, action Action, outcome Outcome, comment string) (TransitionResult, error) {
	subject, err := s.loadSubject(ctx, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}

	approver, err := s.Store.ApproverByID(ctx, userID)
	if err != nil {
		return TransitionResult{}, err
	}

	var stage Stage
	var decision Decision
	if action == ActionFinalize {
		stage, decision, err = s.Workflow.Finalize(ctx, subject, approver, outcome, comment)
	} else {
		stage, decision, err = s.Workflow.Recommend(ctx, subject, approver, outcome, comment)
	}
	if err != nil {
		return TransitionResult{}, err
	}

	// Reload so the caller sees the persisted record, not a guess.
	subject, err = s.loadSubject(ctx, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Subject: subject, Stage: stage, Decision: decision}, nil
}

func (s *Service) loadSubject(ctx context.Context, kind SubjectType, id string) (Subject, error) {
	if kind == SubjectOverride {
		return s.Store.GetOverride(ctx, id)
	}
	return s.Store.GetChangeRequest(ctx, id)
}

// ResolveEffectiveRate computes the rate in force for a lease unit at a given
// date. Read-only and deterministic for fixed inputs.
func (s *Service) ResolveEffectiveRate(ctx context.Context, leaseUnitID string, at time.Time) (Resolution, error) {
	rent, err := s.Store.LeaseUnitRent(ctx, leaseUnitID)
	if err != nil {
		return Resolution{}, err
	}
	composition := rent.Base()

	increases, err := s.Store.ApprovedChangeRequests(ctx, leaseUnitID)
	if err != nil {
		return Resolution{}, err
	}
	overrides, err := s.Store.ApprovedOverrides(ctx, leaseUnitID)
	if err != nil {
		return Resolution{}, err
	}

	resolution := Resolve(composition.BaseRent, increases, overrides, at)
	resolution.Warnings = append(composition.Warnings, resolution.Warnings...)
	return resolution, nil
}

// Composition exposes the floor-level rent breakdown for a lease unit.
func (s *Service) Composition(ctx context.Context, leaseUnitID string) (Composition, error) {
	rent, err := s.Store.LeaseUnitRent(ctx, leaseUnitID)
	if err != nil {
		return Composition{}, err
	}
	return rent.Base(), nil
}

// History is the full governance record of a lease unit.
type History struct {
	LeaseUnitID string              `json:"leaseUnitId"`
	Requests    []RateChangeRequest `json:"requests"`
	Overrides   []RateOverride      `json:"overrides"`
	Decisions   []Decision          `json:"decisions"`
}

func (s *Service) History(ctx context.Context, leaseUnitID string) (History, error) {
	if _, err := s.Store.LeaseUnitRent(ctx, leaseUnitID); err != nil {
		return History{}, err
	}

	requests, err := s.Store.ChangeRequestsForLeaseUnit(ctx, leaseUnitID)
	if err != nil {
		return History{}, err
	}
	overrides, err := s.Store.OverridesForLeaseUnit(ctx, leaseUnitID)
	if err != nil {
		return History{}, err
	}

	out := History{LeaseUnitID: leaseUnitID, Requests: requests, Overrides: overrides}
	for _, r := range requests {
		decisions, err := s.Store.ListDecisions(ctx, SubjectChangeRequest, r.ID)
		if err != nil {
			return History{}, err
		}
		out.Decisions = append(out.Decisions, decisions...)
	}
	for _, o := range overrides {
		decisions, err := s.Store.ListDecisions(ctx, SubjectOverride, o.ID)
		if err != nil {
			return History{}, err
		}
		out.Decisions = append(out.Decisions, decisions...)
	}
	return out, nil
}
