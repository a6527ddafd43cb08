package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"taskroute/internal/telemetry"
)

func TestSetupIsNoopWhenDisabled(t *testing.T) {
	for _, opts := range []telemetry.Options{
		{ServiceName: "test", Enabled: true},
		{ServiceName: "test", Endpoint: "http://localhost:4318", Enabled: false},
	} {
		shutdown, err := telemetry.Setup(context.Background(), opts)
		if err != nil {
			t.Fatalf("setup %+v: %v", opts, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := shutdown(ctx); err != nil {
			t.Fatalf("noop shutdown: %v", err)
		}
	}
}

func TestSetupWithEndpointShutsDownCleanly(t *testing.T) {
	// Non-routable address so nothing is exported.
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Options{ServiceName: "test", Endpoint: "http://192.0.2.1:4318", Enabled: true})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestMiddlewarePassesThrough(t *testing.T) {
	var sawSpan bool
	h := telemetry.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = trace.SpanFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusTeapot || !sawSpan {
		t.Fatalf("code = %d, span = %v", rec.Code, sawSpan)
	}
}
