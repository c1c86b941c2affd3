// prometheus.go - Prometheus text exposition of the in-process metrics
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type promMetric struct {
	name, help, kind string
	value            float64
}

// PrometheusHandler serves the current snapshot in Prometheus text format.
func (s *Server) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.metrics.Snapshot()

		var out strings.Builder

		version := s.cfg.Version
		if version == "" {
			version = "dev"
		}
		out.WriteString("# HELP fts_info Application version info\n")
		out.WriteString("# TYPE fts_info gauge\n")
		fmt.Fprintf(&out, "fts_info{version=\"%s\",storage=\"%s\"} 1\n\n",
			prometheusLabel(version), prometheusLabel(s.saver.Backend.Kind()))

		for _, m := range []promMetric{
			{"fts_requests_total", "Total number of HTTP requests", "counter", float64(snap.RequestsTotal)},
			{"fts_request_errors_4xx_total", "HTTP responses with a 4xx status", "counter", float64(snap.RequestErrors4xx)},
			{"fts_request_errors_5xx_total", "HTTP responses with a 5xx status", "counter", float64(snap.RequestErrors5xx)},
			{"fts_uploads_total", "Total number of stored uploads", "counter", float64(snap.UploadsTotal)},
			{"fts_upload_bytes_total", "Bytes written by uploads", "counter", float64(snap.UploadBytesTotal)},
			{"fts_upload_errors_total", "Rejected or failed uploads", "counter", float64(snap.UploadErrorsTotal)},
			{"fts_upload_avg_duration_ms", "Average time to store an upload", "gauge", snap.UploadAvgDurationMs},
			{"fts_upload_collisions_total", "Uploads saved under a suffixed name", "counter", float64(snap.CollisionsTotal)},
			{"fts_thumbnails_total", "Thumbnails generated", "counter", float64(snap.ThumbnailsTotal)},
			{"fts_thumbnail_errors_total", "Thumbnail generation failures", "counter", float64(snap.ThumbnailErrorsTotal)},
			{"fts_files_served_total", "Stored uploads served under /files/", "counter", float64(snap.FilesServedTotal)},
			{"fts_files_served_bytes_total", "Bytes of stored uploads served", "counter", float64(snap.FilesServedBytesTotal)},
			{"fts_static_requests_total", "Requests handled by the static file server", "counter", float64(snap.StaticRequestsTotal)},
			{"fts_catalog_errors_total", "Failed catalog writes", "counter", float64(snap.CatalogErrorsTotal)},
			{"fts_uptime_seconds", "Application uptime in seconds", "counter", time.Since(s.started).Seconds()},
		} {
			fmt.Fprintf(&out, "# HELP %s %s\n", m.name, m.help)
			fmt.Fprintf(&out, "# TYPE %s %s\n", m.name, m.kind)
			fmt.Fprintf(&out, "%s %s\n\n", m.name, formatValue(m.value))
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out.String()))
	}
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.3f", v)
}

// Helper function to format label safely for Prometheus
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
