package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/academic-platform/pkg/auth"
)

// NewSelfHandler returns the gateway's own endpoints, reached through
// rules whose service is [ServiceSelf]:
//
//	GET /actuator/health          {"status":"UP"}
//	GET /actuator/prometheus      metrics from gatherer
//	GET /actuator/gateway/routes  the route table as JSON
//
// Anything else is answered with 404 JSON.
func NewSelfHandler(table *Table, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /actuator/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	})
	mux.Handle("GET /actuator/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /actuator/gateway/routes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, table.Rules())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		auth.WriteJSONError(w, http.StatusNotFound, "Not found")
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
