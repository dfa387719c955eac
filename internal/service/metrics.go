package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"snapify/internal/rules"
)

var photoAdmissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "snapify_photo_admissions_total",
	Help: "Photo admission attempts by outcome.",
}, []string{"outcome"})

func admissionOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, rules.ErrEventExpired):
		return "expired"
	case errors.Is(err, rules.ErrEventFull):
		return "full"
	case errors.Is(err, rules.ErrDeviceQuotaExceeded):
		return "device_quota"
	case errors.Is(err, rules.ErrNotFound):
		return "not_found"
	case errors.Is(err, rules.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, rules.ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}

func observeAdmission(err error) {
	photoAdmissions.WithLabelValues(admissionOutcome(err)).Inc()
}
