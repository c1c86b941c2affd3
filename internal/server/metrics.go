package server

import (
	"sync/atomic"
	"time"
)

// Metrics holds in-process counters exported at /metrics. All methods are
// safe for concurrent use.
type Metrics struct {
	uploads       atomic.Int64
	uploadBytes   atomic.Int64
	uploadErrors  atomic.Int64
	uploadNanos   atomic.Int64
	collisions    atomic.Int64
	thumbnails    atomic.Int64
	thumbFailures atomic.Int64
	filesServed   atomic.Int64
	filesBytes    atomic.Int64
	staticHits    atomic.Int64
	catalogErrors atomic.Int64
	requests      atomic.Int64
	responses4xx  atomic.Int64
	responses5xx  atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordUpload counts a stored upload and the time spent writing it.
func (m *Metrics) RecordUpload(bytes int64, d time.Duration) {
	m.uploads.Add(1)
	m.uploadBytes.Add(bytes)
	m.uploadNanos.Add(int64(d))
}

func (m *Metrics) RecordUploadError() { m.uploadErrors.Add(1) }

// RecordCollision counts an upload saved under a suffixed name.
func (m *Metrics) RecordCollision() { m.collisions.Add(1) }

func (m *Metrics) RecordThumbnail(ok bool) {
	if ok {
		m.thumbnails.Add(1)
		return
	}
	m.thumbFailures.Add(1)
}

// RecordFileServed counts a stored upload read back through /files/.
func (m *Metrics) RecordFileServed(bytes int64) {
	m.filesServed.Add(1)
	m.filesBytes.Add(bytes)
}

func (m *Metrics) RecordStaticRequest() { m.staticHits.Add(1) }

func (m *Metrics) RecordCatalogError() { m.catalogErrors.Add(1) }

// RecordRequest counts one HTTP response by status class.
func (m *Metrics) RecordRequest(status int) {
	m.requests.Add(1)
	switch {
	case status >= 500:
		m.responses5xx.Add(1)
	case status >= 400:
		m.responses4xx.Add(1)
	}
}

// Snapshot copies the counters. Individual values are read independently, so
// a snapshot taken under load may mix neighbouring instants.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uploads := m.uploads.Load()
	return MetricsSnapshot{
		UploadsTotal:          uploads,
		UploadBytesTotal:      m.uploadBytes.Load(),
		UploadErrorsTotal:     m.uploadErrors.Load(),
		UploadAvgDurationMs:   avgMillis(time.Duration(m.uploadNanos.Load()), uploads),
		CollisionsTotal:       m.collisions.Load(),
		ThumbnailsTotal:       m.thumbnails.Load(),
		ThumbnailErrorsTotal:  m.thumbFailures.Load(),
		FilesServedTotal:      m.filesServed.Load(),
		FilesServedBytesTotal: m.filesBytes.Load(),
		StaticRequestsTotal:   m.staticHits.Load(),
		CatalogErrorsTotal:    m.catalogErrors.Load(),
		RequestsTotal:         m.requests.Load(),
		RequestErrors5xx:      m.responses5xx.Load(),
		RequestErrors4xx:      m.responses4xx.Load(),
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	UploadsTotal        int64   `json:"uploads_total"`
	UploadBytesTotal    int64   `json:"upload_bytes_total"`
	UploadErrorsTotal   int64   `json:"upload_errors_total"`
	UploadAvgDurationMs float64 `json:"upload_avg_duration_ms"`
	CollisionsTotal     int64   `json:"collisions_total"`

	ThumbnailsTotal      int64 `json:"thumbnails_total"`
	ThumbnailErrorsTotal int64 `json:"thumbnail_errors_total"`

	FilesServedTotal      int64 `json:"files_served_total"`
	FilesServedBytesTotal int64 `json:"files_served_bytes_total"`
	StaticRequestsTotal   int64 `json:"static_requests_total"`

	CatalogErrorsTotal int64 `json:"catalog_errors_total"`

	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`
}

func avgMillis(total time.Duration, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(total.Microseconds()) / 1000 / float64(n)
}
