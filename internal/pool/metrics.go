package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spawnkit_pool_active_workers",
		Help: "Current number of live worker subprocesses across all signatures",
	})

	idleWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spawnkit_pool_idle_workers",
		Help: "Current number of idle worker subprocesses across all signatures",
	})

	workersSpawnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spawnkit_pool_workers_spawned_total",
		Help: "Total number of worker subprocesses spawned, by signature",
	}, []string{"signature"})

	workersEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spawnkit_pool_workers_evicted_total",
		Help: "Total number of worker subprocesses evicted after an idle timeout, by signature",
	}, []string{"signature"})
)
