package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SnapshotComputeTotal counts price snapshot computations by outcome.
	SnapshotComputeTotal *prometheus.CounterVec
	// OfferTotal counts offer mutations by action.
	OfferTotal *prometheus.CounterVec
	// FXRequestTotal counts upstream exchange-rate fetches by outcome.
	FXRequestTotal *prometheus.CounterVec
	// BackupTotal counts backup and restore runs by outcome.
	BackupTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SnapshotComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_compute_total",
			Help:      "Count of price snapshot computations by outcome.",
		}, []string{"result"})
		OfferTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_total",
			Help:      "Count of offer mutations by action.",
		}, []string{"action"})
		FXRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_request_total",
			Help:      "Count of upstream exchange-rate fetches by outcome.",
		}, []string{"result"})
		BackupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_total",
			Help:      "Count of backup and restore runs by action and outcome.",
		}, []string{"action", "result"})

		mustRegisterCollector(reg, SnapshotComputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SnapshotComputeTotal = v
			}
		})
		mustRegisterCollector(reg, OfferTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OfferTotal = v
			}
		})
		mustRegisterCollector(reg, FXRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FXRequestTotal = v
			}
		})
		mustRegisterCollector(reg, BackupTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BackupTotal = v
			}
		})
	})
}

// CountSnapshotCompute records a snapshot computation outcome.
func CountSnapshotCompute(result string) {
	if SnapshotComputeTotal != nil {
		SnapshotComputeTotal.WithLabelValues(result).Inc()
	}
}

// CountOffer records an offer mutation.
func CountOffer(action string) {
	if OfferTotal != nil {
		OfferTotal.WithLabelValues(action).Inc()
	}
}

// CountFXRequest records an exchange-rate fetch outcome.
func CountFXRequest(result string) {
	if FXRequestTotal != nil {
		FXRequestTotal.WithLabelValues(result).Inc()
	}
}

// CountBackup records a backup or restore run.
func CountBackup(action, result string) {
	if BackupTotal != nil {
		BackupTotal.WithLabelValues(action, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
