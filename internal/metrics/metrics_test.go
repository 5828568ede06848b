package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := New("assistant")

	c.CacheLookup("hit")
	c.CacheLookup("hit")
	c.CacheLookup("miss")
	c.Query("no_match")
	c.TaskFailed("cache-put")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DetachedTaskFailures.WithLabelValues("cache-put")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := New("assistant")
	b := New("assistant")
	a.Query("answered")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Queries.WithLabelValues("answered")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.CacheLookup("hit")
		c.Query("answered")
		c.Ingestion("file", "ok")
		c.Compression(0.4)
		c.Retrieved(3)
		c.Since("retrieve", time.Now())
		c.TaskFailed("track")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New("assistant")
	c.Compression(0.25)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "assistant_compression_ratio")
}
