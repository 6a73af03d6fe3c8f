package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/rates"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnitAlreadyLeased = errors.New("unit is already on an active lease")
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateProperty(ctx context.Context, code, name, address string) (Property, error) {
	var p Property
	err := s.DB.QueryRow(ctx, `
    INSERT INTO properties (code, name, address)
    VALUES ($1,$2,$3)
    RETURNING id, code, name, address, created_at
  `, code, name, address).Scan(&p.ID, &p.Code, &p.Name, &p.Address, &p.CreatedAt)
	return p, err
}

func (s *Store) ListProperties(ctx context.Context) ([]Property, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, code, name, address, created_at
    FROM properties
    ORDER BY name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Property
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Address, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateUnit(ctx context.Context, propertyID, name string, totalArea, totalRent float64) (Unit, error) {
	var u Unit
	err := s.DB.QueryRow(ctx, `
    INSERT INTO units (property_id, name, total_area, total_rent)
    VALUES ($1,$2,$3,$4)
    RETURNING id, property_id, name, total_area, total_rent, status, created_at
  `, propertyID, name, totalArea, totalRent).Scan(&u.ID, &u.PropertyID, &u.Name, &u.TotalArea, &u.TotalRent, &u.Status, &u.CreatedAt)
	return u, err
}

func (s *Store) ListUnits(ctx context.Context, propertyID string) ([]Unit, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, property_id, name, total_area, total_rent, status, created_at
    FROM units
    WHERE property_id = $1
    ORDER BY name
  `, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.PropertyID, &u.Name, &u.TotalArea, &u.TotalRent, &u.Status, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UnitByID(ctx context.Context, unitID string) (Unit, error) {
	var u Unit
	err := s.DB.QueryRow(ctx, `
    SELECT id, property_id, name, total_area, total_rent, status, created_at
    FROM units
    WHERE id = $1
  `, unitID).Scan(&u.ID, &u.PropertyID, &u.Name, &u.TotalArea, &u.TotalRent, &u.Status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (s *Store) AddFloor(ctx context.Context, unitID string, level int, name string, area, rate float64) (UnitFloor, error) {
	var f UnitFloor
	err := s.DB.QueryRow(ctx, `
    INSERT INTO unit_floors (unit_id, level, name, area, rate)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, unit_id, level, name, area, rate, created_at, updated_at
  `, unitID, level, name, area, rate).Scan(&f.ID, &f.UnitID, &f.Level, &f.Name, &f.Area, &f.Rate, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *Store) UpdateFloor(ctx context.Context, floorID string, area, rate float64) (UnitFloor, error) {
	var f UnitFloor
	err := s.DB.QueryRow(ctx, `
    UPDATE unit_floors
    SET area = $2, rate = $3, updated_at = now()
    WHERE id = $1
    RETURNING id, unit_id, level, name, area, rate, created_at, updated_at
  `, floorID, area, rate).Scan(&f.ID, &f.UnitID, &f.Level, &f.Name, &f.Area, &f.Rate, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

func (s *Store) ListFloors(ctx context.Context, unitID string) ([]UnitFloor, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, unit_id, level, name, area, rate, created_at, updated_at
    FROM unit_floors
    WHERE unit_id = $1
    ORDER BY level
  `, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnitFloor
	for rows.Next() {
		var f UnitFloor
		if err := rows.Scan(&f.ID, &f.UnitID, &f.Level, &f.Name, &f.Area, &f.Rate, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) CreateTenant(ctx context.Context, name, email, phone string) (Tenant, error) {
	var t Tenant
	err := s.DB.QueryRow(ctx, `
    INSERT INTO tenants (name, email, phone)
    VALUES ($1,$2,$3)
    RETURNING id, name, email, phone, created_at
  `, name, email, phone).Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.CreatedAt)
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, email, phone, created_at
    FROM tenants
    ORDER BY name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateLease creates a lease and its lease units in one transaction. Each
// unit's contracted rent is composed from its floors with the negotiated
// per-floor rates overlaid; units without floor records fall back to their
// stored total rent. A unit already on an active lease is refused.
func (s *Store) CreateLease(ctx context.Context, input NewLease) (Lease, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Lease{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lease Lease
	if err := tx.QueryRow(ctx, `
    INSERT INTO leases (tenant_id, start_date, end_date, status)
    VALUES ($1,$2,$3,$4)
    RETURNING id, tenant_id, start_date, end_date, status, created_at
  `, input.TenantID, input.StartDate, input.EndDate, LeaseStatusActive).Scan(&lease.ID, &lease.TenantID, &lease.StartDate, &lease.EndDate, &lease.Status, &lease.CreatedAt); err != nil {
		return Lease{}, err
	}

	for _, unitInput := range input.Units {
		leaseUnit, err := s.attachUnit(ctx, tx, lease.ID, unitInput)
		if err != nil {
			return Lease{}, err
		}
		lease.Units = append(lease.Units, leaseUnit)
	}

	if err := tx.Commit(ctx); err != nil {
		return Lease{}, err
	}
	return lease, nil
}

func (s *Store) attachUnit(ctx context.Context, tx pgx.Tx, leaseID string, input NewLeaseUnit) (LeaseUnit, error) {
	// Lock the unit row so two leases cannot claim it concurrently.
	var unitRent, unitArea float64
	err := tx.QueryRow(ctx, `
    SELECT total_rent, total_area FROM units WHERE id = $1 FOR UPDATE
  `, input.UnitID).Scan(&unitRent, &unitArea)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaseUnit{}, fmt.Errorf("unit %s: %w", input.UnitID, ErrNotFound)
	}
	if err != nil {
		return LeaseUnit{}, err
	}

	var activeCount int
	if err := tx.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM lease_units lu
    JOIN leases l ON lu.lease_id = l.id
    WHERE lu.unit_id = $1 AND l.status = $2
  `, input.UnitID, LeaseStatusActive).Scan(&activeCount); err != nil {
		return LeaseUnit{}, err
	}
	if activeCount > 0 {
		return LeaseUnit{}, fmt.Errorf("unit %s: %w", input.UnitID, ErrUnitAlreadyLeased)
	}

	floors, err := floorsForCompose(ctx, tx, input.UnitID, input.FloorRates)
	if err != nil {
		return LeaseUnit{}, err
	}
	rentAmount := rates.Compose(floors, unitArea, unitRent).BaseRent

	var leaseUnit LeaseUnit
	if err := tx.QueryRow(ctx, `
    INSERT INTO lease_units (lease_id, unit_id, rent_amount)
    VALUES ($1,$2,$3)
    RETURNING id, lease_id, unit_id, rent_amount, created_at
  `, leaseID, input.UnitID, rentAmount).Scan(&leaseUnit.ID, &leaseUnit.LeaseID, &leaseUnit.UnitID, &leaseUnit.RentAmount, &leaseUnit.CreatedAt); err != nil {
		return LeaseUnit{}, err
	}

	for floorID, rate := range input.FloorRates {
		if _, err := tx.Exec(ctx, `
      INSERT INTO lease_unit_floor_rates (lease_unit_id, unit_floor_id, rate)
      VALUES ($1,$2,$3)
    `, leaseUnit.ID, floorID, rate); err != nil {
			return LeaseUnit{}, err
		}
	}

	if _, err := tx.Exec(ctx, `
    UPDATE units SET status = $2 WHERE id = $1
  `, input.UnitID, UnitStatusOccupied); err != nil {
		return LeaseUnit{}, err
	}
	return leaseUnit, nil
}

func floorsForCompose(ctx context.Context, tx pgx.Tx, unitID string, negotiated map[string]float64) ([]rates.Floor, error) {
	rows, err := tx.Query(ctx, `
    SELECT id, level, name, area, rate
    FROM unit_floors
    WHERE unit_id = $1
    ORDER BY level
  `, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var floors []rates.Floor
	for rows.Next() {
		var f rates.Floor
		if err := rows.Scan(&f.ID, &f.Level, &f.Name, &f.Area, &f.Rate); err != nil {
			return nil, err
		}
		if rate, ok := negotiated[f.ID]; ok {
			f.Rate = rate
		}
		floors = append(floors, f)
	}
	return floors, rows.Err()
}

func (s *Store) ListLeases(ctx context.Context) ([]Lease, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, tenant_id, start_date, end_date, status, created_at
    FROM leases
    ORDER BY created_at DESC
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lease
	for rows.Next() {
		var l Lease
		if err := rows.Scan(&l.ID, &l.TenantID, &l.StartDate, &l.EndDate, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		units, err := s.leaseUnits(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Units = units
	}
	return out, nil
}

func (s *Store) leaseUnits(ctx context.Context, leaseID string) ([]LeaseUnit, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, lease_id, unit_id, rent_amount, created_at
    FROM lease_units
    WHERE lease_id = $1
    ORDER BY created_at
  `, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaseUnit
	for rows.Next() {
		var lu LeaseUnit
		if err := rows.Scan(&lu.ID, &lu.LeaseID, &lu.UnitID, &lu.RentAmount, &lu.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, lu)
	}
	return out, rows.Err()
}

func (s *Store) LeaseUnitByID(ctx context.Context, leaseUnitID string) (LeaseUnit, error) {
	var lu LeaseUnit
	err := s.DB.QueryRow(ctx, `
    SELECT id, lease_id, unit_id, rent_amount, created_at
    FROM lease_units
    WHERE id = $1
  `, leaseUnitID).Scan(&lu.ID, &lu.LeaseID, &lu.UnitID, &lu.RentAmount, &lu.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lu, ErrNotFound
	}
	return lu, err
}

// TerminateLease ends an active lease and frees its units.
func (s *Store) TerminateLease(ctx context.Context, leaseID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
    UPDATE leases SET status = $2 WHERE id = $1 AND status = $3
  `, leaseID, LeaseStatusTerminated, LeaseStatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
    UPDATE units SET status = $1
    WHERE id IN (SELECT unit_id FROM lease_units WHERE lease_id = $2)
  `, UnitStatusVacant, leaseID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
