package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/config"
)

var (
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_messages_total",
		Help: "Total number of chat messages seen",
	})

	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_triggers_total",
		Help: "Total number of detected response triggers by type",
	}, []string{"type"})

	ProviderAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_provider_attempts_total",
		Help: "Total number of AI provider attempts by provider and outcome",
	}, []string{"provider", "outcome"})

	ResponseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_response_duration_seconds",
		Help:    "AI response generation duration",
		Buckets: prometheus.DefBuckets,
	})

	FactsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_facts_extracted_total",
		Help: "Total number of facts stored or reinforced",
	})

	RateLimitDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_rate_limit_drops_total",
		Help: "Total number of requests dropped by the user rate limiter",
	})

	CooldownSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_cooldown_skips_total",
		Help: "Total number of keyword responses suppressed by the chat cooldown",
	})
)

// StartMetricsServer serves Prometheus metrics and a health endpoint.
func StartMetricsServer(cfg *config.MetricsConfig, logger *logrus.Logger) {
	if !cfg.Enabled {
		return
	}

	router := mux.NewRouter()
	router.Handle(cfg.Path, promhttp.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Metrics server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()
}
