package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceDomainCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordSlotAssignment()
	m.RecordSlotAssignment()
	m.RecordSlotConflict()
	m.RecordSlotsTruncated(3)
	m.RecordSlotsTruncated(0)
	m.RecordQuizAttempt("passed")
	m.RecordCacheOperation(true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotAssignments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotConflicts))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.slotsTruncated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quizAttempts.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordSlotAssignment()
		m.RecordQuizAttempt("failed")
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	})
	assert.NotNil(t, m.Handler())
}
