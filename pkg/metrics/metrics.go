// Package metrics exports resolution, transfer, repository, cache and HTTP
// activity as Prometheus metrics.
//
// A [Metrics] value is at once a [transfer.Listener], an [event.Listener]
// and an implementation of every hook interface of package observability:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	m.Install()                 // observability hooks
//	sess.Listener = m           // repository events
//	sess.TransferListener = m   // transfer lifecycles
package metrics

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/observability"
	"github.com/matzehuels/depot/pkg/transfer"
)

const namespace = "depot"

// Metrics holds the collectors. Create it with [New].
type Metrics struct {
	transfers        *prometheus.CounterVec
	transferBytes    *prometheus.CounterVec
	repositoryEvents *prometheus.CounterVec

	collectDuration  prometheus.Histogram
	collectedNodes   prometheus.Gauge
	collectFailures  prometheus.Counter
	conflicts        prometheus.Counter
	resolveDuration  prometheus.Histogram
	artifactRequests *prometheus.CounterVec

	cacheRequests *prometheus.CounterVec
	cacheBytes    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

var (
	_ transfer.Listener          = (*Metrics)(nil)
	_ event.Listener             = (*Metrics)(nil)
	_ observability.ResolveHooks = (*Metrics)(nil)
	_ observability.CacheHooks   = (*Metrics)(nil)
	_ observability.HTTPHooks    = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Finished transfers by repository, direction and result.",
		}, []string{"repository", "direction", "result"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved by transfers.",
		}, []string{"repository", "direction"}),
		repositoryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_events_total",
			Help:      "Repository events by type.",
		}, []string{"type"}),

		collectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collect_duration_seconds",
			Help:      "Time taken to collect a dependency graph.",
			Buckets:   prometheus.DefBuckets,
		}),
		collectedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collected_nodes",
			Help:      "Number of nodes in the last collected graph.",
		}),
		collectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_failures_total",
			Help:      "Collections that ended with an error.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Version conflicts resolved.",
		}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_resolution_duration_seconds",
			Help:      "Time taken to resolve a batch of artifacts.",
			Buckets:   prometheus.DefBuckets,
		}),
		artifactRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_requests_total",
			Help:      "Artifact requests by result.",
		}, []string{"result"}),

		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by key type and result.",
		}, []string{"key_type", "result"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_bytes_written_total",
			Help:      "Bytes written to the cache by key type.",
		}, []string{"key_type"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Repository HTTP responses by method, host and status code.",
		}, []string{"method", "host", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Repository HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "host"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Repository HTTP requests that got no response.",
		}, []string{"method", "host"}),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors returns every collector, e.g. for a custom registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transfers, m.transferBytes, m.repositoryEvents,
		m.collectDuration, m.collectedNodes, m.collectFailures, m.conflicts,
		m.resolveDuration, m.artifactRequests,
		m.cacheRequests, m.cacheBytes,
		m.httpRequests, m.httpDuration, m.httpErrors,
	}
}

// Install registers m as the global resolve, cache and HTTP hooks.
func (m *Metrics) Install() {
	observability.SetResolveHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

// =============================================================================
// Transfer Listener
// =============================================================================

func (m *Metrics) TransferInitiated(transfer.Event) error { return nil }
func (m *Metrics) TransferStarted(transfer.Event) error   { return nil }
func (m *Metrics) TransferCorrupted(transfer.Event) error { return nil }

func (m *Metrics) TransferProgressed(e transfer.Event) error {
	m.transferBytes.WithLabelValues(repositoryLabel(e.Resource), direction(e)).Add(float64(len(e.DataBuffer)))
	return nil
}

func (m *Metrics) TransferSucceeded(e transfer.Event) {
	m.transfers.WithLabelValues(repositoryLabel(e.Resource), direction(e), "success").Inc()
}

func (m *Metrics) TransferFailed(e transfer.Event) {
	result := "failure"
	if errors.Is(e.Err, errors.ErrCodeNotFound) {
		result = "not_found"
	}
	m.transfers.WithLabelValues(repositoryLabel(e.Resource), direction(e), result).Inc()
}

func direction(e transfer.Event) string {
	if e.RequestType == transfer.Put {
		return "upload"
	}
	return "download"
}

// repositoryLabel is the host of the repository URL, or the URL itself for
// hostless schemes such as file.
func repositoryLabel(r transfer.Resource) string {
	if u, err := url.Parse(r.RepositoryURL()); err == nil && u.Host != "" {
		return u.Host
	}
	return r.RepositoryURL()
}

// =============================================================================
// Repository Listener
// =============================================================================

func (m *Metrics) repositoryEvent(e event.Event) {
	m.repositoryEvents.WithLabelValues(e.Type().String()).Inc()
}

func (m *Metrics) ArtifactDescriptorInvalid(e event.Event) { m.repositoryEvent(e) }
func (m *Metrics) ArtifactDescriptorMissing(e event.Event) { m.repositoryEvent(e) }
func (m *Metrics) MetadataInvalid(e event.Event)           { m.repositoryEvent(e) }
func (m *Metrics) ArtifactResolving(e event.Event)         { m.repositoryEvent(e) }
func (m *Metrics) ArtifactResolved(e event.Event)          { m.repositoryEvent(e) }
func (m *Metrics) MetadataResolving(e event.Event)         { m.repositoryEvent(e) }
func (m *Metrics) MetadataResolved(e event.Event)          { m.repositoryEvent(e) }
func (m *Metrics) ArtifactInstalling(e event.Event)        { m.repositoryEvent(e) }
func (m *Metrics) ArtifactInstalled(e event.Event)         { m.repositoryEvent(e) }
func (m *Metrics) MetadataInstalling(e event.Event)        { m.repositoryEvent(e) }
func (m *Metrics) MetadataInstalled(e event.Event)         { m.repositoryEvent(e) }
func (m *Metrics) ArtifactDeploying(e event.Event)         { m.repositoryEvent(e) }
func (m *Metrics) ArtifactDeployed(e event.Event)          { m.repositoryEvent(e) }
func (m *Metrics) MetadataDeploying(e event.Event)         { m.repositoryEvent(e) }
func (m *Metrics) MetadataDeployed(e event.Event)          { m.repositoryEvent(e) }

// =============================================================================
// Observability Hooks
// =============================================================================

func (m *Metrics) OnCollectStart(context.Context, string) {}

func (m *Metrics) OnCollectComplete(_ context.Context, _ string, nodes int, d time.Duration, err error) {
	m.collectDuration.Observe(d.Seconds())
	m.collectedNodes.Set(float64(nodes))
	if err != nil {
		m.collectFailures.Inc()
	}
}

func (m *Metrics) OnConflictsResolved(_ context.Context, _ string, _, conflicts int, _ time.Duration) {
	m.conflicts.Add(float64(conflicts))
}

func (m *Metrics) OnArtifactsResolved(_ context.Context, requested, missing int, d time.Duration) {
	m.resolveDuration.Observe(d.Seconds())
	m.artifactRequests.WithLabelValues("resolved").Add(float64(requested - missing))
	m.artifactRequests.WithLabelValues("missing").Add(float64(missing))
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheRequests.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheRequests.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, method, host, _ string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, host, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, method, host, _ string, _ error) {
	m.httpErrors.WithLabelValues(method, host).Inc()
}
