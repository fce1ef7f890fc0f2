package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.diskPressureLevel)
	assert.NotNil(t, collector.bocpdChangePointsTotal)
	assert.NotNil(t, collector.exportStageDuration)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	collector.RecordHTTPRequest("GET", "/test", 200, 50*time.Millisecond, 512, 1024)

	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordDiskSample(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	storageFree := uint64(1_000_000)
	collector.RecordDiskSample(&storageFree, nil, &storageFree, 1, 1_700_000_000, 4096, 8192, false)

	assert.InDelta(t, float64(storageFree), testutil.ToFloat64(collector.diskStorageFreeBytes), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(collector.diskPressureLevel), 0.001)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.diskSampleErrorsTotal))

	collector.RecordDiskSample(nil, nil, nil, 0, 1_700_000_001, 0, 0, true)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.diskSampleErrorsTotal))
}

func TestCollector_RecordSearch(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordSearch("lexical", 10*time.Millisecond)
	collector.RecordSearchRefinementFailure()

	count := testutil.CollectAndCount(collector.searchRequestsTotal)
	assert.Greater(t, count, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.searchRefinementFailuresTotal))
}

func TestCollector_RecordMessageDelivered(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordMessageDelivered("urgent", 5*time.Millisecond)
	collector.RecordArchiveCommit("ok")

	count := testutil.CollectAndCount(collector.messagesDeliveredTotal)
	assert.Greater(t, count, 0)

	commitCount := testutil.CollectAndCount(collector.archiveCommitsTotal)
	assert.Greater(t, commitCount, 0)
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordCacheHit("two_tier_refine")
	collector.RecordCacheMiss("two_tier_refine")

	hitCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, hitCount, 0)

	missCount := testutil.CollectAndCount(collector.cacheMisses)
	assert.Greater(t, missCount, 0)
}

func TestCollector_RecordDatabaseQuery(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordDBQuery("sqlite", "SELECT", 20*time.Millisecond)

	count := testutil.CollectAndCount(collector.dbQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordDBConnections("sqlite", 10, 5)

	openCount := testutil.CollectAndCount(collector.dbConnectionsOpen)
	assert.Greater(t, openCount, 0)

	idleCount := testutil.CollectAndCount(collector.dbConnectionsIdle)
	assert.Greater(t, idleCount, 0)
}

func TestCollector_RecordObservabilityCore(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordChangePoint("send_message")
	collector.RecordConformalInterval("send_message", 0.1, 0.3)
	collector.RecordEvidenceLedgerSize(42)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.bocpdChangePointsTotal.WithLabelValues("send_message")))
	assert.InDelta(t, 0.2, testutil.ToFloat64(collector.conformalIntervalWidth.WithLabelValues("send_message")), 0.001)
	assert.Equal(t, float64(42), testutil.ToFloat64(collector.evidenceLedgerSize))
}

func TestCollector_RecordExportPipeline(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordExportStage("snapshot", 2*time.Millisecond)
	collector.RecordExport("ok")

	count := testutil.CollectAndCount(collector.exportStageDuration)
	assert.Greater(t, count, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.exportsTotal.WithLabelValues("ok")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordMessageDelivered("normal", 1*time.Millisecond)
			collector.RecordCacheHit("two_tier_refine")
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	deliveredCount := testutil.CollectAndCount(collector.messagesDeliveredTotal)
	assert.Greater(t, deliveredCount, 0)

	cacheCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, cacheCount, 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	logger := zap.NewNop()

	registry := prometheus.NewRegistry()

	collector := NewCollector(nextTestNamespace(), logger)

	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 0, 0)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}
