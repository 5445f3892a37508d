package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverMetrics_RegisterAndExpose(t *testing.T) {
	reg := NewRegistry()
	m := NewDriverMetrics(reg)

	m.FramesReceived.WithLabelValues("ok").Inc()
	m.ControlReceived.WithLabelValues(ControlLabel(0x15)).Inc()
	m.SendTotal.WithLabelValues("I", "ok").Add(2)
	m.DevicesOnline.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SendTotal.WithLabelValues("I", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DevicesOnline))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `fdm_control_received_total{byte="nack"} 1`))
	assert.True(t, strings.Contains(body, "fdm_devices_online 3"))
}

func TestControlLabel(t *testing.T) {
	assert.Equal(t, "ack", ControlLabel(0x06))
	assert.Equal(t, "nack", ControlLabel(0x15))
	assert.Equal(t, "other", ControlLabel(0x00))
}
