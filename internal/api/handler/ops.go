package handler

import (
	"net/http"
	"time"

	"github.com/breatheroute/airvoice/internal/api/models"
	"github.com/breatheroute/airvoice/internal/api/response"
	"github.com/breatheroute/airvoice/internal/provider/resilience"
)

// IngressCheck reports whether an optional event ingress is healthy.
type IngressCheck struct {
	Name    string
	Healthy func() bool
}

// OpsConfig configures the OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Sessions  Sessions
	Ingress   []IngressCheck
	Now       func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails once shutdown begins
// so the load balancer stops sending new sessions.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sessions != nil && h.cfg.Sessions.ShuttingDown() {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.cfg.Now()),
			Details: map[string]interface{}{"reason": "shutting down"},
		})
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider circuits, ingress and
// active session count.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.cfg.Now()),
		Ingress:   []models.SubsystemStatus{},
		Providers: []models.ProviderStatus{},
	}
	if h.cfg.Sessions != nil {
		status.ActiveSessions = h.cfg.Sessions.Count()
	}

	for _, check := range h.cfg.Ingress {
		sub := models.SubsystemStatus{Name: check.Name, Status: models.HealthStatusOK}
		if check.Healthy != nil && !check.Healthy() {
			sub.Status = models.HealthStatusFail
			status.Status = models.HealthStatusDegraded
		}
		status.Ingress = append(status.Ingress, sub)
	}

	if h.cfg.Registry != nil {
		for _, health := range h.cfg.Registry.Snapshot() {
			p := providerStatus(health)
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, p)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(health resilience.Health) models.ProviderStatus {
	p := models.ProviderStatus{
		Provider:            health.Name,
		Status:              models.HealthStatusOK,
		Circuit:             health.State.String(),
		ConsecutiveFailures: health.Counts.ConsecutiveFailures,
		LastSuccessAt:       models.TimestampPtr(health.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(health.LastFailureAt),
	}
	switch {
	case health.Open():
		p.Status = models.HealthStatusFail
	case health.HalfOpen():
		p.Status = models.HealthStatusDegraded
	}
	if health.LastError != "" {
		msg := health.LastError
		p.Message = &msg
	}
	return p
}
