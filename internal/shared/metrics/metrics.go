package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	processingStartedTotal   atomic.Uint64
	processingCompletedTotal atomic.Uint64
	processingFailedTotal    atomic.Uint64
	biomarkersStoredTotal    atomic.Uint64
	biomarkersSkippedTotal   atomic.Uint64
	fallbackUploadsTotal     atomic.Uint64

	workerReceivedTotal      atomic.Uint64
	workerCompletedTotal     atomic.Uint64
	workerFailedTotal        atomic.Uint64
	workerUnrecoverableTotal atomic.Uint64

	engineAttempts = newLabeledCounter()

	processingDuration = newHistogram([]float64{500, 1000, 2500, 5000, 10000, 20000, 45000, 90000, 180000})
)

func IncProcessingStarted()   { processingStartedTotal.Add(1) }
func IncProcessingCompleted() { processingCompletedTotal.Add(1) }
func IncProcessingFailed()    { processingFailedTotal.Add(1) }

func IncWorkerReceived()  { workerReceivedTotal.Add(1) }
func IncWorkerCompleted() { workerCompletedTotal.Add(1) }
func IncWorkerFailed()    { workerFailedTotal.Add(1) }

// IncWorkerDeletedUnrecoverable counts queue messages dropped because a retry could not help.
func IncWorkerDeletedUnrecoverable() { workerUnrecoverableTotal.Add(1) }

// AddBiomarkersStored counts biomarker rows written.
func AddBiomarkersStored(n int) {
	if n > 0 {
		biomarkersStoredTotal.Add(uint64(n))
	}
}

// AddBiomarkersSkipped counts biomarker rows whose insert failed and was skipped.
func AddBiomarkersSkipped(n int) {
	if n > 0 {
		biomarkersSkippedTotal.Add(uint64(n))
	}
}

// BiomarkersSkipped returns the running total of skipped biomarker rows.
func BiomarkersSkipped() uint64 { return biomarkersSkippedTotal.Load() }

// IncFallbackUploads counts FileUpload rows created on demand.
func IncFallbackUploads() { fallbackUploadsTotal.Add(1) }

// IncEngineAttempt counts one OCR engine attempt by engine and outcome.
func IncEngineAttempt(engine, outcome string) {
	engineAttempts.Inc(fmt.Sprintf("engine=%q,outcome=%q", engine, outcome))
}

// ObserveProcessingDurationMs records a pipeline duration in milliseconds.
func ObserveProcessingDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	processingDuration.Observe(value)
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
	writeCounter(&buf, "processing_started_total", "Total uploads whose processing started", processingStartedTotal.Load())
	writeCounter(&buf, "processing_completed_total", "Total uploads processed successfully", processingCompletedTotal.Load())
	writeCounter(&buf, "processing_failed_total", "Total uploads whose processing failed", processingFailedTotal.Load())
	writeCounter(&buf, "biomarkers_stored_total", "Total biomarker values stored", biomarkersStoredTotal.Load())
	writeCounter(&buf, "biomarkers_skipped_total", "Total biomarker values skipped after insert failure", biomarkersSkippedTotal.Load())
	writeCounter(&buf, "fallback_uploads_total", "Total file uploads created on demand", fallbackUploadsTotal.Load())
	writeCounter(&buf, "worker_messages_received_total", "Total queue messages received by the worker", workerReceivedTotal.Load())
	writeCounter(&buf, "worker_messages_completed_total", "Total queue messages processed and deleted", workerCompletedTotal.Load())
	writeCounter(&buf, "worker_messages_failed_total", "Total queue messages left for redelivery", workerFailedTotal.Load())
	writeCounter(&buf, "worker_messages_unrecoverable_total", "Total undecodable queue messages deleted", workerUnrecoverableTotal.Load())
	writeLabeledCounter(&buf, "ocr_engine_attempts_total", "OCR engine attempts by outcome", engineAttempts.Snapshot())
	writeHistogram(&buf, "processing_duration_ms", "Upload processing duration in milliseconds", processingDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: map[string]uint64{}}
}

func (l *labeledCounter) Inc(labels string) {
	l.mu.Lock()
	l.values[labels]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
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

// Observe increments the first bucket whose bound holds value; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
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

func writeLabeledCounter(buf *bytes.Buffer, name, help string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s} %d\n", name, k, values[k])
	}
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
