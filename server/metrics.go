package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "server",
		Name:      "connections_total",
		Help:      "Number of accepted TCP connections.",
	})
	metricAuthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "server",
		Name:      "auth_total",
		Help:      "Authentication attempts by mode and result.",
	}, []string{"mode", "result"})
	metricOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fileshare",
		Subsystem: "server",
		Name:      "online_users",
		Help:      "Number of authenticated connections.",
	})
	metricBufferReservedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fileshare",
		Subsystem: "upload",
		Name:      "buffer_reserved_bytes",
		Help:      "Bytes reserved by in-flight uploads.",
	})
	metricUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "upload",
		Name:      "uploads_total",
		Help:      "Finished upload sessions by result.",
	}, []string{"result"})
	metricUploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "upload",
		Name:      "bytes_total",
		Help:      "Bytes of chunk data received.",
	})
	metricDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "download",
		Name:      "downloads_total",
		Help:      "Download requests by result.",
	}, []string{"result"})
	metricDownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "Bytes of file content sent.",
	})
	metricRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "messages",
		Name:      "file_requests_total",
		Help:      "File requests created.",
	})
	metricPushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fileshare",
		Subsystem: "messages",
		Name:      "pushes_total",
		Help:      "Pushed notifications by result.",
	}, []string{"result"})
)
