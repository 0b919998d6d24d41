package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersByLabel(t *testing.T) {
	m := New()
	m.FragmentCreated("v1", "timebased")
	m.FragmentCreated("v1", "timebased")
	m.FragmentCreated("v2", "timebased")
	m.MembersPaginated("v1", 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fragmentsCreated.WithLabelValues("v1", "timebased")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fragmentsCreated.WithLabelValues("v2", "timebased")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.membersPaginated.WithLabelValues("v1")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FragmentCreated("v1", "timebased")
	m.PaginationRun("v1", time.Second, errors.New("x"))
	m.StorageHook().ObserveBatchCommit(time.Millisecond, 3, 10)
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesFragmentCounter(t *testing.T) {
	m := New()
	m.FragmentCreated("v1", "timebased")
	m.StorageHook().ObserveRead(time.Millisecond, 8)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ldes_server_create_fragments_count{fragmentation_strategy="timebased",view="v1"} 1`), body)
	assert.Contains(t, body, "ldes_server_storage_op_seconds")
}
