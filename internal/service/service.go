// Package service implements the assessment service's HTTP and gRPC
// surfaces: a verifying microservice that re-validates every forwarded
// bearer token with its own filter instead of trusting the gateway's
// identity headers.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Name labels the service in logs, metrics and traces.
const Name = "assessment-service"

// HealthChecker reports whether the service can take traffic.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// MeResponse is the body of GET /api/v1/assessments/me.
type MeResponse struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	StudentID string `json:"studentId,omitempty"`
	TeacherID string `json:"teacherId,omitempty"`
}

// SurveysResponse is the body of GET /api/v1/surveys/admin.
type SurveysResponse struct {
	Surveys     []string `json:"surveys"`
	RequestedBy string   `json:"requestedBy"`
}

// Handler returns the service's HTTP handler: the routes below wrapped in
// the authentication filter, which leaves /actuator public.
//
//	GET /api/v1/assessments/me    identity with resolved student/teacher id
//	GET /api/v1/surveys/admin     ADMIN and above
//	GET /actuator/health          lifecycle health
//	GET /actuator/prometheus      metrics from gatherer
func Handler(validator auth.TokenValidator, health HealthChecker, gatherer prometheus.Gatherer, opts ...auth.MiddlewareOption) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/assessments/me", handleMe)
	mux.Handle("GET /api/v1/surveys/admin", auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(handleAdminSurveys)))
	mux.HandleFunc("GET /actuator/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	})
	mux.Handle("GET /actuator/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		auth.WriteJSONError(w, http.StatusNotFound, "Not found")
	})

	return auth.HTTPMiddleware(validator, Name, opts...)(mux)
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := auth.MustIdentityFromContext(ctx)
	claims, _ := auth.ClaimsFromContext(ctx)

	resp := MeResponse{
		UserID:   identity.UserID(),
		Username: identity.Username(),
		Role:     identity.Authority(),
	}

	err := claims.CheckConsistency()
	if err == nil {
		switch identity.Role() {
		case auth.RoleStudent:
			resp.StudentID, err = claims.StudentID()
		case auth.RoleTeacher:
			resp.TeacherID, err = claims.TeacherID()
		default:
			// Administrators may carry either id explicitly.
			resp.StudentID, _ = claims.StudentID()
			resp.TeacherID, _ = claims.TeacherID()
		}
	}
	if err != nil {
		slog.WarnContext(ctx, "service: identity resolution failed",
			"identity", identity,
			"code", sserr.GetCode(err),
			"error", err,
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleAdminSurveys(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.UsernameFromContext(r.Context())
	writeJSON(w, http.StatusOK, SurveysResponse{Surveys: []string{}, RequestedBy: username})
}

// writeError answers with err's status and client-safe message.
func writeError(w http.ResponseWriter, err error) {
	e := sserr.FromError(err)
	auth.WriteJSONError(w, e.HTTPStatus(), strings.TrimPrefix(e.Message, "auth: "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
