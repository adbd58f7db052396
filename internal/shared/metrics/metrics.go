package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	jobsSubmittedTotal atomic.Uint64
	jobsReusedTotal    atomic.Uint64
	jobsClaimedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	jobsRetriedTotal   atomic.Uint64
	jobsReclaimedTotal atomic.Uint64

	messagesReceivedTotal  atomic.Uint64
	messagesDiscardedTotal atomic.Uint64

	jobDuration = newHistogram([]float64{1000, 5000, 15000, 60000, 300000, 900000, 1800000})
)

// IncJobsSubmitted increments the submitted counter.
func IncJobsSubmitted() { jobsSubmittedTotal.Add(1) }

// IncJobsReused increments the counter for idempotent submissions that
// returned an already-active job.
func IncJobsReused() { jobsReusedTotal.Add(1) }

// IncJobsClaimed increments the claimed counter.
func IncJobsClaimed() { jobsClaimedTotal.Add(1) }

// IncJobsCompleted increments the completed counter.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed increments the failed counter.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncJobsRetried increments the retried counter.
func IncJobsRetried() { jobsRetriedTotal.Add(1) }

// IncJobsReclaimed increments the lease-reclaim counter.
func IncJobsReclaimed() { jobsReclaimedTotal.Add(1) }

// IncMessagesReceived increments the queue messages received counter.
func IncMessagesReceived() { messagesReceivedTotal.Add(1) }

// IncMessagesDiscarded counts messages deleted without processing, such as
// malformed payloads.
func IncMessagesDiscarded() { messagesDiscardedTotal.Add(1) }

// ObserveJobDurationMs records a job execution duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "jobs_submitted_total", "Total analysis jobs submitted", jobsSubmittedTotal.Load())
	writeCounter(&buf, "jobs_reused_total", "Total submissions resolved to an existing active job", jobsReusedTotal.Load())
	writeCounter(&buf, "jobs_claimed_total", "Total analysis jobs claimed by workers", jobsClaimedTotal.Load())
	writeCounter(&buf, "jobs_completed_total", "Total analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "jobs_failed_total", "Total analysis jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "jobs_retried_total", "Total analysis job retries enqueued", jobsRetriedTotal.Load())
	writeCounter(&buf, "jobs_reclaimed_total", "Total expired leases reclaimed", jobsReclaimedTotal.Load())
	writeCounter(&buf, "queue_messages_received_total", "Total queue messages received by workers", messagesReceivedTotal.Load())
	writeCounter(&buf, "queue_messages_discarded_total", "Total queue messages deleted without processing", messagesDiscardedTotal.Load())
	writeHistogram(&buf, "job_duration_ms", "Analysis job duration in milliseconds", jobDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
