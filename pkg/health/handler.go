package health

import (
	"net/http"
	"sort"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"go.uber.org/zap"
)

type checkReport struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type report struct {
	Status    Status        `json:"status"`
	Service   string        `json:"service"`
	Checks    []checkReport `json:"checks"`
	CheckedAt int64         `json:"checkedAt"`
}

// Handler serves the aggregate health as JSON; 503 when any check fails.
func Handler(service string, hc *HealthChecker, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := hc.Check(r.Context())
		rep := report{
			Status:    Overall(results),
			Service:   service,
			Checks:    make([]checkReport, 0, len(results)),
			CheckedAt: time.Now().Unix(),
		}
		for name, err := range results {
			cr := checkReport{Name: name, Status: StatusUp}
			if err != nil {
				cr.Status = StatusDown
				cr.Error = err.Error()
			}
			rep.Checks = append(rep.Checks, cr)
		}
		sort.Slice(rep.Checks, func(i, j int) bool { return rep.Checks[i].Name < rep.Checks[j].Name })

		w.Header().Set("Content-Type", "application/json")
		if rep.Status != StatusUp {
			w.WriteHeader(http.StatusServiceUnavailable)
			if log != nil {
				log.Warn("Health check failed", zap.Any("checks", rep.Checks))
			}
		}
		if err := json.NewEncoder(w).Encode(rep); err != nil && log != nil {
			log.Error("Failed to write health response", zap.Error(err))
		}
	})
}
