package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCounters(t *testing.T) {
	m := New()

	m.RecordSocketEvent("MESSAGE_CREATE")
	m.RecordSocketEvent("MESSAGE_CREATE")
	m.RecordSocketEvent("READY")
	m.RecordCommand("ping", "ok", 20*time.Millisecond)
	m.RecordFailure("fallback", "Exception")
	m.RecordChatReply("positive")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.socketEvents.WithLabelValues("MESSAGE_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.socketEvents.WithLabelValues("READY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("ping", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("fallback", "Exception")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatReplies.WithLabelValues("positive")))
}

func TestSetExtensionsReplacesStatuses(t *testing.T) {
	m := New()

	m.SetExtensions(map[string]int{"loaded": 2, "failed": 1})
	m.SetExtensions(map[string]int{"loaded": 3})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.extensions.WithLabelValues("loaded")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.extensions))
}

func TestGauges(t *testing.T) {
	m := New()

	m.SetGatewayLatency("0", 42*time.Millisecond)
	m.SetGuilds(7)
	m.RecordReconnect("0")

	assert.InDelta(t, 0.042, testutil.ToFloat64(m.gatewayLatency.WithLabelValues("0")), 1e-9)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.guilds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayReconnect.WithLabelValues("0")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordSocketEvent("READY")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `chatbot_socket_events_total{event="READY"} 1`))
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordSocketEvent("READY")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.socketEvents.WithLabelValues("READY")))
}

func TestShutdownWithoutServe(t *testing.T) {
	assert.NoError(t, New().Shutdown(t.Context()))
}
