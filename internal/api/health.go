package api

import (
	"context"
	"net/http"
	"time"
)

const checkTimeout = 2 * time.Second

// Check — проверка одной зависимости. nil — здорова.
type Check func(ctx context.Context) error

// HealthResponse — тело /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health возвращает обработчик /healthz: 200, если все проверки прошли,
// иначе 503 с причиной по каждой зависимости.
func Health(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		JSON(w, status, resp)
	}
}
