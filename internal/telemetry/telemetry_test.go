package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupDisabled(t *testing.T) {
	ast := assert.New(t)
	shutdown, err := Setup(context.Background(), Config{}, "1.0")
	ast.NoError(err)
	ast.NoError(shutdown(context.Background()))
}

func TestMiddleware(t *testing.T) {
	ast := assert.New(t)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(old)

	router := chi.NewRouter()
	router.Use(Middleware)
	router.Get("/api/v1/tiles/{z}/{x}/{y}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Get("/livez", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/api/v1/tiles/19/1/2", "/livez"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := rec.Ended()
	require.Len(t, spans, 1)
	ast.Equal("GET /api/v1/tiles/{z}/{x}/{y}", spans[0].Name())
}
