package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryGathersCounters(t *testing.T) {
	LegsTotal.WithLabelValues("WETH->USDC", "submitted").Inc()

	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "legs_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("legs_total metric not found")
	}
}

func TestPushSendsToGateway(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	SwapsTotal.WithLabelValues("USDC->WETH", "submitted").Inc()
	if err := Push(context.Background(), server.URL, "rebalance", "polygon"); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}
	if gotPath != "/metrics/job/rebalance/instance/polygon" {
		t.Fatalf("unexpected push path %s", gotPath)
	}
	if !strings.Contains(gotBody, "swaps_total") {
		t.Fatalf("expected swaps_total in pushed body")
	}
}

func TestPushDisabled(t *testing.T) {
	if err := Push(context.Background(), "", "rebalance", ""); err != nil {
		t.Fatalf("expected no-op push, got %v", err)
	}
}
