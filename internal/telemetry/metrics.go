package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики домена. Регистрируются в default registry при импорте пакета,
// экспортируются через promhttp на /metrics каждого сервиса.
var (
	// RunsStarted — количество run'ов, взятых в выполнение.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "konveyer_runs_started_total",
		Help: "Total pipeline runs picked up for execution",
	})

	// RunsFinished — количество завершённых run'ов по финальному статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "konveyer_runs_finished_total",
		Help: "Total finished pipeline runs by final status",
	}, []string{"status"})

	// StepsFinished — количество завершённых steps по финальному статусу.
	StepsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "konveyer_steps_finished_total",
		Help: "Total finished steps by final status",
	}, []string{"status"})

	// RunDuration — длительность выполнения run'ов.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "konveyer_run_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// EventsPublished — количество опубликованных run-событий по типу.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "konveyer_events_published_total",
		Help: "Total run events published by kind",
	}, []string{"kind"})

	// ObserversConnected — текущее число подключённых observer'ов gateway.
	ObserversConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "konveyer_observers_connected",
		Help: "Currently connected gateway observers",
	})

	// ObserversDropped — observer'ы, отключённые за медленное чтение.
	ObserversDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "konveyer_observers_dropped_total",
		Help: "Gateway observers dropped due to slow consumption",
	})
)
