package services

import "github.com/prometheus/client_golang/prometheus"

var (
	xpGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_xp_granted_total",
			Help: "Total XP granted, by reason",
		},
		[]string{"reason"},
	)
	tasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_tasks_completed_total",
			Help: "Daily task completions, by task id",
		},
		[]string{"task"},
	)
	badgesGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_badges_granted_total",
			Help: "Badges granted, by badge id",
		},
		[]string{"badge"},
	)
	surpriseBoxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_surprise_box_total",
			Help: "Surprise box attempts, by outcome",
		},
		[]string{"outcome"},
	)
)

// InitMetrics registers the engine counters. Call once from main.go.
func InitMetrics() {
	prometheus.MustRegister(xpGrantedTotal)
	prometheus.MustRegister(tasksCompletedTotal)
	prometheus.MustRegister(badgesGrantedTotal)
	prometheus.MustRegister(surpriseBoxTotal)
}
