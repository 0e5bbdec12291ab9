package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forever-store/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", spanCtx.TraceID().String())
	assert.Equal(t, "0000000000000001", spanCtx.SpanID().String())
	assert.True(t, spanCtx.IsSampled())
	assert.True(t, spanCtx.IsRemote())

	spanCtx, ok = parseCloudTraceContext("105445aa7843bc8bf206b12000100000/00f067aa0ba902b7")
	require.True(t, ok)
	assert.False(t, spanCtx.IsSampled())

	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/0;o=1"} {
		_, ok := parseCloudTraceContext(header)
		assert.False(t, ok, header)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(baseCore))

	log(context.Background(), "order.status.updated", map[string]any{"orderId": "ord_1"})
	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "order.notification.failed", map[string]any{"error": "boom"})

	require.Equal(t, 1, baseLogs.Len())
	assert.Equal(t, "ord_1", baseLogs.All()[0].ContextMap()["orderId"])
	require.Equal(t, 1, reqLogs.Len())
	assert.Equal(t, zapcore.ErrorLevel, reqLogs.All()[0].Level)
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/mine", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	chain := InjectLoggerMiddleware(zap.New(core))(TraceMiddleware("forever")(RequestLoggerMiddleware()(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/status", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.EqualValues(t, http.StatusConflict, entry.ContextMap()["status"])
}

func TestOrderMetricsWithNoopProvider(t *testing.T) {
	metrics, err := NewOrderMetrics(noop.NewMeterProvider())
	require.NoError(t, err)
	metrics.StatusTransition(context.Background(), "Packing", "Order Shipped", "admin")
	metrics.StatusRejected(context.Background(), "backward")
	metrics.StockClamped(context.Background(), "p1")

	var nilMetrics *OrderMetrics
	nilMetrics.StatusTransition(context.Background(), "a", "b", "c")
}

func TestSanitizeStringDropsControlCharacters(t *testing.T) {
	assert.Equal(t, "GETX", SanitizeMethod("GET\nX"))
	assert.Equal(t, "/", SanitizeRoute(""))
	assert.Len(t, SanitizeUserID(string(make([]byte, 100))), 0)
}
