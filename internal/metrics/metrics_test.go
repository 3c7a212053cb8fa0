package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/models"
)

func TestObserveAttempt(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveAttempt(models.ProviderRunway, models.CapabilityVideoFromText, "timeout", 2*time.Second)
	c.ObserveAttempt(models.ProviderRunway, models.CapabilityVideoFromText, "timeout", time.Second)
	c.ObserveAttempt(models.ProviderPexels, models.CapabilityVideoFromText, "success", time.Second)
	c.ObserveAttempt(models.ProviderVeo, models.CapabilityVideoFromText, "unavailable", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.attempts.WithLabelValues("runway", "video_from_text", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("pexels", "video_from_text", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("veo", "video_from_text", "unavailable")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.attemptDuration), "unavailable attempts have no duration series")
}

func TestJobLifecycle(t *testing.T) {
	c := NewCollector(nil)
	started := time.Now()
	finished := started.Add(30 * time.Second)

	c.JobStarted(models.JobRecord{ID: "a"})
	c.JobStarted(models.JobRecord{ID: "b"})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsInFlight))

	c.JobFinished(models.JobRecord{ID: "a", Stage: models.JobStageCompleted, StartedAt: &started, FinishedAt: &finished})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsInFlight))

	// Failed while still pending: never in flight.
	c.JobFinished(models.JobRecord{ID: "c", Stage: models.JobStageFailed, FinishedAt: &finished})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsInFlight))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFinished.WithLabelValues("failed")))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.ObserveAttempt(models.ProviderXAI, models.CapabilityVideoFromText, "success", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `provider_attempts_total{capability="video_from_text",outcome="success",provider="xai"} 1`)
}
