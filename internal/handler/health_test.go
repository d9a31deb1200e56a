package handler

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealth_AnonymousGetsMinimalResponse(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)

	rr := c.do(http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v", resp["status"])
	}
	if _, ok := resp["checks"]; ok {
		t.Error("anonymous caller got check details")
	}
}

func TestHealth_SignedInGetsChecks(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)
	c.signIn(1)

	rr := c.do(http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp HealthStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Checks["database"].Status != "healthy" {
		t.Errorf("database check = %+v", resp.Checks["database"])
	}
	if resp.Uptime == "" {
		t.Error("missing uptime")
	}
}

func TestLivenessAndReadiness(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)

	if rr := c.do(http.MethodGet, "/health/live", nil); rr.Code != http.StatusOK {
		t.Errorf("liveness: status = %d", rr.Code)
	}
	if rr := c.do(http.MethodGet, "/health/ready", nil); rr.Code != http.StatusOK {
		t.Errorf("readiness: status = %d", rr.Code)
	}
}
