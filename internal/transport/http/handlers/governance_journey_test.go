package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"pms/internal/app/server"
	"pms/internal/platform/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		DatabaseURL:       dbURL,
		JWTSecret:         "governance-test-secret",
		TokenTTL:          time.Hour,
		Environment:       "test",
		MigrationsDir:     "../../../../migrations",
		SeedAdminEmail:    "admin@test.local",
		SeedAdminPassword: "ChangeMe123!",
		SeedAdminName:     "Seed Admin",
		EmailFrom:         "no-reply@test.local",
		RunMigrations:     true,
		RunSeed:           true,
		MaxBodyBytes:      1048576,
	}
}

func TestRateGovernanceJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()
	client := ts.Client()

	adminToken := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	suffix := time.Now().UnixNano()
	propertyID := createEntity(t, client, ts.URL+"/api/v1/properties", adminToken, map[string]any{
		"code": fmt.Sprintf("HP-%d", suffix), "name": "Harbor Point", "address": "1 Quay St",
	})
	unitID := createEntity(t, client, ts.URL+"/api/v1/properties/"+propertyID+"/units", adminToken, map[string]any{
		"name": "Suite 400", "totalArea": 150, "totalRent": 70000,
	})
	createEntity(t, client, ts.URL+"/api/v1/units/"+unitID+"/floors", adminToken, map[string]any{
		"level": 4, "name": "Level 4", "area": 100, "rate": 500,
	})
	createEntity(t, client, ts.URL+"/api/v1/units/"+unitID+"/floors", adminToken, map[string]any{
		"level": 5, "name": "Level 5", "area": 50, "rate": 600,
	})
	tenantID := createEntity(t, client, ts.URL+"/api/v1/tenants", adminToken, map[string]any{
		"name": fmt.Sprintf("Acme Trading %d", suffix),
	})

	leaseResp := postJSON(t, client, ts.URL+"/api/v1/leases", adminToken, map[string]any{
		"tenantId":  tenantID,
		"startDate": "2024-01-01",
		"units":     []map[string]any{{"unitId": unitID}},
	})
	var lease struct {
		ID    string `json:"id"`
		Units []struct {
			ID         string  `json:"id"`
			RentAmount float64 `json:"rentAmount"`
		} `json:"units"`
	}
	if err := json.Unmarshal(leaseResp.Data, &lease); err != nil {
		t.Fatalf("failed to decode lease: %v", err)
	}
	if len(lease.Units) != 1 {
		t.Fatalf("expected one lease unit, got %d", len(lease.Units))
	}
	leaseUnitID := lease.Units[0].ID
	if lease.Units[0].RentAmount != 80000 {
		t.Fatalf("expected floor-composed rent 80000, got %v", lease.Units[0].RentAmount)
	}

	compResp := getJSON(t, client, ts.URL+"/api/v1/lease-units/"+leaseUnitID+"/composition", adminToken)
	var comp struct {
		BaseRent float64 `json:"baseRent"`
	}
	if err := json.Unmarshal(compResp.Data, &comp); err != nil {
		t.Fatalf("failed to decode composition: %v", err)
	}
	if comp.BaseRent != 80000 {
		t.Fatalf("expected base rent 80000, got %v", comp.BaseRent)
	}

	overrideID := createEntity(t, client, ts.URL+"/api/v1/rate-overrides", adminToken, map[string]any{
		"leaseUnitId":   leaseUnitID,
		"overrideType":  "fixed_rate",
		"fixedRate":     75000,
		"effectiveFrom": "2025-01-01",
		"effectiveTo":   "2026-01-01",
		"reason":        "negotiated renewal",
	})

	// A user without approver capabilities cannot act on the queue.
	staffEmail := fmt.Sprintf("staff-%d@test.local", suffix)
	createEntity(t, client, ts.URL+"/api/v1/users", adminToken, map[string]any{
		"email": staffEmail, "password": "StaffPass123!", "fullName": "Plain Staff", "role": "staff",
	})
	staffToken := login(t, client, ts.URL, staffEmail, "StaffPass123!")
	denied := postJSONStatus(t, client, ts.URL+"/api/v1/rate-overrides/"+overrideID+"/recommend", staffToken, map[string]any{
		"outcome": "approved",
	}, http.StatusForbidden)
	if denied.Error == nil || denied.Error.Code != "capability_required" {
		t.Fatalf("expected capability_required, got %+v", denied.Error)
	}

	// The fail-closed queue shows nothing to a user without the capability.
	staffPending := getJSON(t, client, ts.URL+"/api/v1/approvals/pending?stage=pending_recommendation", staffToken)
	var staffItems []map[string]any
	if err := json.Unmarshal(staffPending.Data, &staffItems); err != nil {
		t.Fatalf("failed to decode staff pending list: %v", err)
	}
	if len(staffItems) != 0 {
		t.Fatalf("expected empty queue for staff, got %d items", len(staffItems))
	}

	recommendResp := postJSON(t, client, ts.URL+"/api/v1/rate-overrides/"+overrideID+"/recommend", adminToken, map[string]any{
		"outcome": "approved", "comment": "looks reasonable",
	})
	if stage := transitionStage(t, recommendResp); stage != "pending_final" {
		t.Fatalf("expected pending_final after recommendation, got %s", stage)
	}

	finalizeResp := postJSON(t, client, ts.URL+"/api/v1/rate-overrides/"+overrideID+"/finalize", adminToken, map[string]any{
		"outcome": "approved", "comment": "final sign-off",
	})
	if stage := transitionStage(t, finalizeResp); stage != "approved" {
		t.Fatalf("expected approved after finalize, got %s", stage)
	}

	// Repeating the finalize must fail: the subject is already terminal.
	repeat := postJSONStatus(t, client, ts.URL+"/api/v1/rate-overrides/"+overrideID+"/finalize", adminToken, map[string]any{
		"outcome": "approved",
	}, http.StatusConflict)
	if repeat.Error == nil || repeat.Error.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %+v", repeat.Error)
	}

	assertEffectiveRate(t, client, ts.URL, adminToken, leaseUnitID, "2025-06-01", 75000, "override_fixed")
	assertEffectiveRate(t, client, ts.URL, adminToken, leaseUnitID, "2026-06-01", 80000, "base")

	// An overlapping override passes recommendation but is blocked at finalize.
	overlapID := createEntity(t, client, ts.URL+"/api/v1/rate-overrides", adminToken, map[string]any{
		"leaseUnitId":   leaseUnitID,
		"overrideType":  "no_increase",
		"effectiveFrom": "2025-06-01",
		"reason":        "freeze during dispute",
	})
	postJSON(t, client, ts.URL+"/api/v1/rate-overrides/"+overlapID+"/recommend", adminToken, map[string]any{"outcome": "approved"})
	conflict := postJSONStatus(t, client, ts.URL+"/api/v1/rate-overrides/"+overlapID+"/finalize", adminToken, map[string]any{
		"outcome": "approved",
	}, http.StatusConflict)
	if conflict.Error == nil || conflict.Error.Code != "override_conflict" {
		t.Fatalf("expected override_conflict, got %+v", conflict.Error)
	}

	history := getJSON(t, client, ts.URL+"/api/v1/lease-units/"+leaseUnitID+"/history", adminToken)
	var hist struct {
		Overrides []struct {
			ID    string `json:"id"`
			Stage string `json:"stage"`
		} `json:"overrides"`
		Decisions []map[string]any `json:"decisions"`
	}
	if err := json.Unmarshal(history.Data, &hist); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	for _, o := range hist.Overrides {
		if o.ID == overlapID && o.Stage != "pending_final" {
			t.Fatalf("expected conflicted override to stay pending_final, got %s", o.Stage)
		}
	}
	if len(hist.Decisions) < 3 {
		t.Fatalf("expected at least 3 decisions, got %d", len(hist.Decisions))
	}

	assertStatementDownload(t, client, ts.URL, adminToken, leaseUnitID)

	auditResp := getJSON(t, client, ts.URL+"/api/v1/audit?entityType=rate_override", adminToken)
	var auditPage struct {
		Total  int              `json:"total"`
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(auditResp.Data, &auditPage); err != nil {
		t.Fatalf("failed to decode audit page: %v", err)
	}
	if auditPage.Total == 0 {
		t.Fatal("expected audit events for rate overrides")
	}
}

func assertEffectiveRate(t *testing.T, client *http.Client, baseURL, token, leaseUnitID, at string, wantRate float64, wantSource string) {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/lease-units/"+leaseUnitID+"/effective-rate?at="+at, token)
	var payload struct {
		Resolution struct {
			Rate   float64 `json:"rate"`
			Source string  `json:"source"`
		} `json:"resolution"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode resolution: %v", err)
	}
	if payload.Resolution.Rate != wantRate || payload.Resolution.Source != wantSource {
		t.Fatalf("at %s expected %v from %s, got %v from %s",
			at, wantRate, wantSource, payload.Resolution.Rate, payload.Resolution.Source)
	}
}

func assertStatementDownload(t *testing.T, client *http.Client, baseURL, token, leaseUnitID string) {
	t.Helper()
	for _, format := range []string{"pdf", "csv"} {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/reports/lease-units/"+leaseUnitID+"/statement?format="+format, nil)
		if err != nil {
			t.Fatalf("statement request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("statement request failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("statement %s: unexpected status %d: %s", format, resp.StatusCode, string(body))
		}
		if len(body) == 0 {
			t.Fatalf("statement %s: empty body", format)
		}
		if format == "pdf" && !bytes.HasPrefix(body, []byte("%PDF")) {
			t.Fatalf("statement pdf: missing PDF header")
		}
	}
}

func transitionStage(t *testing.T, env envelope) string {
	t.Helper()
	var payload struct {
		Stage string `json:"stage"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("failed to decode transition: %v", err)
	}
	return payload.Stage
}

func createEntity(t *testing.T, client *http.Client, url, token string, body map[string]any) string {
	t.Helper()
	resp := postJSON(t, client, url, token, body)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode create response from %s: %v", url, err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatalf("expected id in create response from %s", url)
	}
	return id
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	env, status := doJSON(t, client, http.MethodPost, url, token, body)
	if status >= 400 {
		t.Fatalf("unexpected status %d from %s: %+v", status, url, env.Error)
	}
	return env
}

func postJSONStatus(t *testing.T, client *http.Client, url, token string, body any, want int) envelope {
	t.Helper()
	env, status := doJSON(t, client, http.MethodPost, url, token, body)
	if status != want {
		t.Fatalf("expected status %d from %s, got %d: %+v", want, url, status, env.Error)
	}
	return env
}

func getJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	env, status := doJSON(t, client, http.MethodGet, url, token, nil)
	if status >= 400 {
		t.Fatalf("unexpected status %d from %s: %+v", status, url, env.Error)
	}
	return env
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any) (envelope, int) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response from %s: %v: %s", url, err, string(raw))
	}
	return env, resp.StatusCode
}
