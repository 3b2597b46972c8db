// Package metrics exposes Prometheus collectors for codec streams.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "framecodec"
	subsystem = "stream"

	formatLabelName    = "format"
	directionLabelName = "direction"
	kindLabelName      = "kind"
)

// Directions used as label values.
const (
	Decode = "decode"
	Encode = "encode"
)

var (
	// sizeBuckets covers documents from 64 bytes to 16 MiB.
	sizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

	StreamBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_total",
			Help:      "bytes read or written by stream pumps",
		}, []string{formatLabelName, directionLabelName})

	StreamSuspensions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "suspensions_total",
			Help:      "times an engine returned to the pump for more input or output space",
		}, []string{formatLabelName, directionLabelName})

	StreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "failed stream operations by error kind",
		}, []string{formatLabelName, directionLabelName, kindLabelName})

	StreamBufferGrows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "buffer_grows_total",
			Help:      "times a decode buffer was grown to fit a pending value",
		}, []string{formatLabelName})

	DocumentSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "document_size_bytes",
			Help:      "size of completed documents",
			Buckets:   sizeBuckets,
		}, []string{formatLabelName, directionLabelName})

	metricRegisterer prometheus.Registerer
	registerMu       sync.Mutex
)

// GetRegisterer returns the registerer passed to Register, or
// prometheus.DefaultRegisterer when Register has not been called.
func GetRegisterer() prometheus.Registerer {
	registerMu.Lock()
	defer registerMu.Unlock()
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register registers all collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(StreamBytes)
	r.MustRegister(StreamSuspensions)
	r.MustRegister(StreamErrors)
	r.MustRegister(StreamBufferGrows)
	r.MustRegister(DocumentSize)

	registerMu.Lock()
	metricRegisterer = r
	registerMu.Unlock()
}
