package portfolio

import "time"

type Property struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

type Unit struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"propertyId"`
	Name       string    `json:"name"`
	TotalArea  float64   `json:"totalArea"`
	TotalRent  float64   `json:"totalRent"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	UnitStatusVacant   = "vacant"
	UnitStatusOccupied = "occupied"
)

type UnitFloor struct {
	ID        string    `json:"id"`
	UnitID    string    `json:"unitId"`
	Level     int       `json:"level"`
	Name      string    `json:"name"`
	Area      float64   `json:"area"`
	Rate      float64   `json:"rate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	LeaseStatusActive     = "active"
	LeaseStatusTerminated = "terminated"
	LeaseStatusExpired    = "expired"
)

type Lease struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId"`
	StartDate time.Time   `json:"startDate"`
	EndDate   *time.Time  `json:"endDate,omitempty"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	Units     []LeaseUnit `json:"units,omitempty"`
}

type LeaseUnit struct {
	ID         string    `json:"id"`
	LeaseID    string    `json:"leaseId"`
	UnitID     string    `json:"unitId"`
	RentAmount float64   `json:"rentAmount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewLeaseUnit describes one unit joining a new lease. FloorRates carries the
// per-floor rates negotiated at setup time, keyed by unit floor ID; floors
// not listed keep their standard rate. The negotiated rates are persisted as
// first-class rows so the per-floor breakdown survives for later governance.
type NewLeaseUnit struct {
	UnitID     string             `json:"unitId"`
	FloorRates map[string]float64 `json:"floorRates,omitempty"`
}

type NewLease struct {
	TenantID  string         `json:"tenantId"`
	StartDate time.Time      `json:"startDate"`
	EndDate   *time.Time     `json:"endDate,omitempty"`
	Units     []NewLeaseUnit `json:"units"`
}
