package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s2s "github.com/goliatone/go-s2s"
	"github.com/goliatone/go-s2s/metrics"
)

func TestCollectorRecordsActivity(t *testing.T) {
	c := metrics.New()
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, s2s.ActivityEvent{
		EventType: s2s.ActivityEventLoginSuccess,
		Actor:     s2s.ActorRef{ID: "u1", Type: "user"},
	}))
	require.NoError(t, c.Record(ctx, s2s.ActivityEvent{
		EventType: s2s.ActivityEventLoginSuccess,
		Actor:     s2s.ActorRef{ID: "u2", Type: "user"},
	}))
	require.NoError(t, c.Record(ctx, s2s.ActivityEvent{
		EventType: s2s.ActivityEventRefreshReuse,
	}))

	expected := `
# HELP s2s_activity_events_total Auth and user activity events by type.
# TYPE s2s_activity_events_total counter
s2s_activity_events_total{actor_type="unknown",event="auth.token.reuse"} 1
s2s_activity_events_total{actor_type="user",event="auth.login.success"} 2
`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "s2s_activity_events_total")
	assert.NoError(t, err)
}

func TestCollectorMiddlewareCountsStatus(t *testing.T) {
	c := metrics.New()

	ok := c.Middleware()(func(ctx router.Context) error { return nil })
	denied := c.Middleware()(func(ctx router.Context) error { return s2s.ErrUnauthorized })

	ctx := router.NewMockContext()
	ctx.On("Method").Return("GET").Maybe()

	require.NoError(t, ok(ctx))
	require.ErrorIs(t, denied(ctx), s2s.ErrUnauthorized)

	expected := `
# HELP s2s_http_requests_total HTTP requests by method and status.
# TYPE s2s_http_requests_total counter
s2s_http_requests_total{method="GET",status="200"} 1
s2s_http_requests_total{method="GET",status="401"} 1
`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "s2s_http_requests_total")
	assert.NoError(t, err)
}

func TestCollectorHandlerExposesMetrics(t *testing.T) {
	c := metrics.New()
	require.NoError(t, c.Record(context.Background(), s2s.ActivityEvent{EventType: s2s.ActivityEventSignup}))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `s2s_activity_events_total{actor_type="unknown",event="auth.signup"} 1`)
}

func TestCollectorIsActivitySink(t *testing.T) {
	var sink s2s.ActivitySink = metrics.New()
	assert.NotNil(t, sink)
}
