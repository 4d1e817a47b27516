package health

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// RenderFunc converts the result of a health check into the JSON response body.
type RenderFunc func(err error) interface{}

type HealthCheckHttpHandler struct {
	checker Checker
	render  RenderFunc
}

func NewHealthCheckHttpHandler(checker Checker, render RenderFunc) *HealthCheckHttpHandler {
	return &HealthCheckHttpHandler{
		checker: checker,
		render:  render,
	}
}

// ServeHTTP answers 200 when the checker passes and 500 otherwise. The body is always JSON.
func (h *HealthCheckHttpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.checker.Check()
	status := http.StatusOK
	if err != nil {
		log.Warnf("Health check failed: %v", err)
		status = http.StatusInternalServerError
	} else {
		log.Debug("Health check passed")
	}
	WriteJson(w, status, h.render(err))
}

func WriteJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to write health check response: %v", err)
	}
}
