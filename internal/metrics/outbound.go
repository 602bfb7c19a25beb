// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebDriverRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_webdriver_requests_total",
		Help: "WebDriver commands, by command and result (ok, error, status class).",
	}, []string{"command", "result"})

	WebDriverRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jibri_webdriver_request_duration_seconds",
		Help:    "WebDriver command latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"command"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_webhook_deliveries_total",
		Help: "Status webhook deliveries, by result.",
	}, []string{"result"})
)

// ObserveWebDriver records one WebDriver command.
func ObserveWebDriver(command, result string, d time.Duration) {
	WebDriverRequestsTotal.WithLabelValues(command, result).Inc()
	WebDriverRequestDuration.WithLabelValues(command).Observe(d.Seconds())
}

// IncWebhookDelivery records a webhook delivery result.
func IncWebhookDelivery(result string) {
	WebhookDeliveriesTotal.WithLabelValues(result).Inc()
}
