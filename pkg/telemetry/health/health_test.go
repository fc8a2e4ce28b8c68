package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{
			"all healthy",
			map[string]CheckFunc{
				"store": func(context.Context) error { return nil },
				"rules": func(context.Context) error { return nil },
			},
			StatusReady,
		},
		{
			"one failing",
			map[string]CheckFunc{
				"store": func(context.Context) error { return errors.New("database is locked") },
				"rules": func(context.Context) error { return nil },
			},
			StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			status := c.CheckReadiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, status.Status)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("expected %d results, got %d", len(tt.checks), len(status.Checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.CheckReadiness(context.Background())
	res := status.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message == "" {
		t.Errorf("expected unhealthy result with message, got %+v", res)
	}
}

func TestListChecks(t *testing.T) {
	c := New(0)
	c.RegisterCheck("store", func(context.Context) error { return nil })
	c.RegisterCheck("kafka", func(context.Context) error { return nil })
	c.RegisterCheck("store", func(context.Context) error { return nil })

	names := c.ListChecks()
	if len(names) != 2 || names[0] != "kafka" || names[1] != "store" {
		t.Errorf("unexpected checks %v", names)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("store", func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		code    int
	}{
		{"liveness", c.LivenessHandler(), http.MethodGet, http.StatusOK},
		{"readiness degraded", c.ReadinessHandler(), http.MethodGet, http.StatusServiceUnavailable},
		{"version", VersionHandler("1.2.3", "abc", "today"), http.MethodGet, http.StatusOK},
		{"post rejected", c.LivenessHandler(), http.MethodPost, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(tt.method, "/", nil))
			if rec.Code != tt.code {
				t.Errorf("expected status %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestReadinessHandler_Body(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("store", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != StatusReady || status.Checks["store"].Status != StatusOK {
		t.Errorf("unexpected body %+v", status)
	}
}
