package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mcoot/clanadmin/internal/testutil"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), DefaultConfig(), testutil.NopLogger())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupExportsOnShutdown(t *testing.T) {
	var posts atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	otel.SetTracerProvider(noop.NewTracerProvider())

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = collector.URL

	shutdown, err := Setup(context.Background(), cfg, testutil.NopLogger())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "work")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, int32(1), posts.Load())
}
