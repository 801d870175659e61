package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vimarsh/guidance/internal/auth"
	"github.com/vimarsh/guidance/internal/budget"
	"github.com/vimarsh/guidance/internal/cost"
	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/guidance"
	"github.com/vimarsh/guidance/internal/security"
)

// GuidanceRequest is the wire shape of POST /guidance.
type GuidanceRequest struct {
	Query         string `json:"query" validate:"required,min=1"`
	PersonalityID string `json:"personality_id" validate:"required"`
	SessionID     string `json:"session_id"`
	Language      string `json:"language"`
}

// GuidanceResponse is the wire shape of POST /guidance's 200 response.
type GuidanceResponse struct {
	Content       string           `json:"content"`
	Citations     []string         `json:"citations"`
	PersonalityID string           `json:"personality_id"`
	Metadata      GuidanceMetadata `json:"metadata"`
}

// GuidanceMetadata is the metadata block attached to every guidance response.
type GuidanceMetadata struct {
	CharacterCount int    `json:"character_count"`
	MaxAllowed     int    `json:"max_allowed"`
	Quality        string `json:"quality"`
	Model          string `json:"model"`
	Attempt        int    `json:"attempt"`
	ResponseTimeMs int    `json:"response_time_ms"`
}

// MountGuidanceRoutes registers the authenticated guidance endpoint on r.
func MountGuidanceRoutes(r chi.Router, pipeline *guidance.Pipeline, sec *security.Validator) {
	r.Post("/guidance", func(w http.ResponseWriter, req *http.Request) {
		user := auth.FromContext(req.Context())
		if user == nil {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		if err := sec.CheckRate(req.Context(), user.Subject, security.ScopeGeneral); err != nil {
			RespondError(w, http.StatusForbidden, "rate_limited", err.Error())
			return
		}

		var body GuidanceRequest
		if !DecodeAndValidate(w, req, &body) {
			return
		}

		resp, err := pipeline.Handle(req.Context(), guidance.Request{
			UserID:      user.Subject,
			Email:       user.Email,
			SessionID:   body.SessionID,
			Query:       body.Query,
			Personality: body.PersonalityID,
			Language:    body.Language,
		})
		if err != nil {
			RespondError(w, http.StatusInternalServerError, "internal", "guidance request failed")
			return
		}

		if resp.Denied {
			RespondError(w, http.StatusForbidden, "budget_denied", resp.DenyReason)
			return
		}

		RespondRedacted(w, http.StatusOK, sec, GuidanceResponse{
			Content:       resp.Text,
			Citations:     resp.Citations,
			PersonalityID: resp.Personality,
			Metadata: GuidanceMetadata{
				CharacterCount: len(resp.Text),
				MaxAllowed:     resp.MaxChars,
				Quality:        string(resp.Quality),
				Model:          resp.Model,
				Attempt:        resp.Attempts,
				ResponseTimeMs: int(resp.ResponseTime.Milliseconds()),
			},
		})
	})
}

// roleResponse is the wire shape of GET /admin/role.
type roleResponse struct {
	Subject     string   `json:"subject"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// setBudgetRequest is the wire shape of POST /admin/budget/{user_id}.
type setBudgetRequest struct {
	MonthlyCap    *float64 `json:"monthly_cap"`
	DailyCap      *float64 `json:"daily_cap"`
	PerRequestCap *float64 `json:"per_request_cap"`
}

// MountAdminRoutes registers the admin-only role, budget, block-list, and
// usage endpoints on r, guarded by the permissions those actions require.
func MountAdminRoutes(r chi.Router, enforcer *budget.Enforcer, accountant *cost.Accountant, sec *security.Validator) {
	r.With(auth.RequireMinRole(domain.RoleAdmin)).Get("/admin/role", func(w http.ResponseWriter, req *http.Request) {
		user := auth.FromContext(req.Context())
		perms := make([]string, 0, len(user.Permissions))
		for _, p := range user.Permissions {
			perms = append(perms, string(p))
		}
		RespondRedacted(w, http.StatusOK, sec, roleResponse{
			Subject:     user.Subject,
			Email:       user.Email,
			Role:        string(user.Role),
			Permissions: perms,
		})
	})

	r.Route("/admin/usage/{user_id}", func(sub chi.Router) {
		sub.Use(auth.RequirePermission(domain.PermissionViewAllUsage))
		sub.Get("/", func(w http.ResponseWriter, req *http.Request) {
			if err := checkAdminRate(req, sec); err != nil {
				RespondError(w, http.StatusForbidden, "rate_limited", err.Error())
				return
			}
			userID, err := sanitizedUserID(req, sec)
			if err != nil {
				RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			stats, err := accountant.Stats(req.Context(), userID)
			if err != nil {
				RespondError(w, http.StatusInternalServerError, "internal", "loading usage stats failed")
				return
			}
			raw := map[string]any{
				"user_id":                stats.UserID,
				"total_requests":         stats.TotalRequests,
				"total_tokens":           stats.TotalTokens,
				"total_cost":             stats.TotalCost,
				"current_month_tokens":   stats.CurrentMonthTokens,
				"current_month_cost":     stats.CurrentMonthCost,
				"last_request":           stats.LastRequest.Format(time.RFC3339Nano),
				"avg_tokens_per_request": stats.AvgTokensPerReq,
				"most_used_model":        stats.MostUsedModel,
				"risk_score":             stats.RiskScore,
				"blocked":                stats.Blocked,
			}
			Respond(w, http.StatusOK, sec.Redactor.RedactUser(raw))
		})
	})

	r.Route("/admin/budget/{user_id}", func(sub chi.Router) {
		sub.Use(auth.RequirePermission(domain.PermissionManageBudget))
		sub.Post("/", func(w http.ResponseWriter, req *http.Request) {
			if err := checkAdminRate(req, sec); err != nil {
				RespondError(w, http.StatusForbidden, "rate_limited", err.Error())
				return
			}

			userID, err := sanitizedUserID(req, sec)
			if err != nil {
				RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
				return
			}

			var body setBudgetRequest
			if err := Decode(req, &body); err != nil {
				RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
				return
			}

			if err := enforcer.SetLimits(req.Context(), userID, body.MonthlyCap, body.DailyCap, body.PerRequestCap); err != nil {
				RespondError(w, http.StatusInternalServerError, "internal", "updating budget failed")
				return
			}
			Respond(w, http.StatusOK, map[string]string{"status": "updated"})
		})
	})

	r.Route("/admin/block/{user_id}", func(sub chi.Router) {
		sub.Use(auth.RequirePermission(domain.PermissionClearBlocks))
		sub.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			if err := checkAdminRate(req, sec); err != nil {
				RespondError(w, http.StatusForbidden, "rate_limited", err.Error())
				return
			}

			userID, err := sanitizedUserID(req, sec)
			if err != nil {
				RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
				return
			}

			if err := enforcer.Unblock(req.Context(), userID); err != nil {
				RespondError(w, http.StatusInternalServerError, "internal", "clearing block failed")
				return
			}
			Respond(w, http.StatusOK, map[string]string{"status": "unblocked"})
		})
	})
}

func checkAdminRate(req *http.Request, sec *security.Validator) error {
	user := auth.FromContext(req.Context())
	if user == nil {
		return errors.New("authentication required")
	}
	return sec.CheckRate(req.Context(), user.Subject, security.ScopeAdmin)
}

// sanitizedUserID extracts and sanitizes the {user_id} path parameter, per
// the security wrapper's path-extraction rule for /users/{id}/... segments.
func sanitizedUserID(req *http.Request, sec *security.Validator) (string, error) {
	raw := chi.URLParam(req, "user_id")
	params, err := sec.SanitizeParams(map[string]any{"user_id": raw})
	if err != nil {
		return "", err
	}
	id, _ := params["user_id"].(string)
	return id, nil
}
