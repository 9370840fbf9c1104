package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsServer(t *testing.T) {
	srv := metricsServer("9464")

	if srv.Addr != ":9464" {
		t.Errorf("Addr = %q, want :9464", srv.Addr)
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET /other status = %d, want 404", rr.Code)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		got := sampler(tt.ratio).Description()
		if !strings.Contains(got, tt.want) {
			t.Errorf("sampler(%v) = %s, want it to contain %s", tt.ratio, got, tt.want)
		}
	}
}

func TestShutdownStack_ReverseOrderAndJoinedErrors(t *testing.T) {
	var order []int
	var stack shutdownStack
	for i := 1; i <= 3; i++ {
		stack.push(func(context.Context) error {
			order = append(order, i)
			if i == 2 {
				return errors.New("exporter stuck")
			}
			return nil
		})
	}

	err := stack.run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "exporter stuck") {
		t.Errorf("run() error = %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("order = %v, want [3 2 1]", order)
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(Config{ServiceName: "finsync", Environment: "test"})
	if err != nil {
		t.Fatalf("newResource() error = %v", err)
	}
	found := false
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "service.name" && kv.Value.AsString() == "finsync" {
			found = true
		}
	}
	if !found {
		t.Errorf("service.name missing from %v", res.Attributes())
	}
}
