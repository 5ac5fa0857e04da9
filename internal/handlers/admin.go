package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cvperfect/SessionService/internal/middleware"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/services"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// SessionCleaner is implemented by *services.CleanupService.
type SessionCleaner interface {
	Cleanup(ctx context.Context, opts services.CleanupOptions) (*models.CleanupReport, error)
}

// SnapshotReporter is implemented by *services.MetricsReporter.
type SnapshotReporter interface {
	Snapshot(ctx context.Context) (*models.MetricsSnapshot, error)
	Invalidate(ctx context.Context)
}

// TokenRevoker is implemented by *services.JWTService.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenString string) error
}

// AdminHandler serves the operator endpoints under /api/v1/admin. All of
// them sit behind middleware.AdminAuth.
type AdminHandler struct {
	sessions      SessionManager
	recovery      SessionRecoverer
	cleanup       SessionCleaner
	reporter      SnapshotReporter
	tokens        TokenRevoker
	defaultMaxAge time.Duration
	defaultBackup bool
}

// NewAdminHandler creates the admin handler. Cleanup requests that omit
// maxAgeHours or backup fall back to the retention configuration.
//
// Example:
//
//	adminHandler := handlers.NewAdminHandler(sessionSvc, recoverySvc, cleanupSvc, reporter, jwtSvc, &cfg.Retention)
//	r.With(middleware.AdminAuth(jwtSvc)).Post("/api/v1/admin/sessions/cleanup", adminHandler.Cleanup)
func NewAdminHandler(
	sessions SessionManager,
	recovery SessionRecoverer,
	cleanup SessionCleaner,
	reporter SnapshotReporter,
	tokens TokenRevoker,
	retention *config.RetentionConfig,
) *AdminHandler {
	return &AdminHandler{
		sessions:      sessions,
		recovery:      recovery,
		cleanup:       cleanup,
		reporter:      reporter,
		tokens:        tokens,
		defaultMaxAge: retention.MaxAge,
		defaultBackup: retention.BackupBeforeCleanup,
	}
}

// CleanupRequest is the body of POST /api/v1/admin/sessions/cleanup.
// Every field is optional.
//
// JSON example:
//
//	{"maxAgeHours": 48, "dryRun": true, "backup": false}
type CleanupRequest struct {
	MaxAgeHours *float64 `json:"maxAgeHours"`
	DryRun      bool     `json:"dryRun"`
	Backup      *bool    `json:"backup"`
}

// CleanupResponse wraps a cleanup report. Success is false when some
// records could not be processed.
type CleanupResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Report  *models.CleanupReport `json:"report"`
}

// MetricsResponse wraps a metrics snapshot.
type MetricsResponse struct {
	Success         bool                    `json:"success"`
	Metrics         *models.MetricsSnapshot `json:"metrics"`
	HealthScore     float64                 `json:"healthScore"`
	Status          string                  `json:"status"`
	Recommendations []string                `json:"recommendations"`
}

// AdminRecoverResponse carries a recovery result including the session.
type AdminRecoverResponse struct {
	Success  bool                     `json:"success"`
	Recovery *services.RecoveryResult `json:"recovery"`
}

// RevokeTokenRequest names the token to revoke. An empty token revokes the
// caller's own token.
type RevokeTokenRequest struct {
	Token string `json:"token"`
}

// Cleanup runs a retention cleanup.
//
// Responses:
//   - 200 {success: true, message, report}
//   - 207 {success: false, message, report} when some records failed;
//     the report lists them in errors
//   - 400 maxAgeHours not positive or too large, or backup without a configured archive
//   - 500 sessions could not be listed
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	opts := services.CleanupOptions{
		MaxAge: h.defaultMaxAge,
		DryRun: req.DryRun,
		Backup: h.defaultBackup,
	}
	if req.MaxAgeHours != nil {
		maxAge, err := services.MaxAgeFromHours(*req.MaxAgeHours)
		if err != nil {
			respondWithServiceError(w, r, "cleanup", err)
			return
		}
		opts.MaxAge = maxAge
	}
	if req.Backup != nil {
		opts.Backup = *req.Backup
	}

	operator, _ := middleware.GetOperator(r.Context())
	log.Info().
		Str("request_id", utils.GetRequestID(r.Context())).
		Str("operator", operator).
		Dur("max_age", opts.MaxAge).
		Bool("dry_run", opts.DryRun).
		Bool("backup", opts.Backup).
		Msg("Admin cleanup requested")

	report, err := h.cleanup.Cleanup(r.Context(), opts)
	if err != nil && !errors.Is(err, services.ErrPartialCleanup) {
		respondWithServiceError(w, r, "cleanup", err)
		return
	}

	if !opts.DryRun && report.Deleted+report.IndexesDeleted > 0 {
		h.reporter.Invalidate(r.Context())
	}

	if err != nil {
		utils.RespondWithJSON(w, r, http.StatusMultiStatus, CleanupResponse{
			Success: false,
			Message: fmt.Sprintf("Cleanup finished with %d errors", len(report.Errors)),
			Report:  report,
		})
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{
		Success: true,
		Message: cleanupMessage(report),
		Report:  report,
	})
}

func cleanupMessage(report *models.CleanupReport) string {
	if report.DryRun {
		return fmt.Sprintf("Dry run: %d of %d sessions would be deleted", report.Expired, report.Scanned)
	}
	return fmt.Sprintf("Deleted %d of %d sessions and %d email indexes", report.Deleted, report.Scanned, report.IndexesDeleted)
}

// Metrics returns the session health snapshot. Nothing is modified.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.reporter.Snapshot(r.Context())
	if err != nil {
		respondWithServiceError(w, r, "metrics", err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, MetricsResponse{
		Success:         true,
		Metrics:         snapshot,
		HealthScore:     snapshot.Health.Score,
		Status:          snapshot.Health.Status,
		Recommendations: snapshot.Recommendations,
	})
}

// List returns payload-free session summaries, most recently updated
// first.
//
// Query parameters:
//   - page: 1-based page number (default 1)
//   - page_size: items per page (default 20, max 100)
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		respondWithServiceError(w, r, "list", err)
		return
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	summaries := make([]models.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, s.Summary())
	}

	params := utils.ParsePageParams(r)
	page := utils.Paginate(summaries, params)
	utils.RespondWithJSON(w, r, http.StatusOK, utils.NewPaginatedResponse(page, params, int64(len(summaries))))
}

// Recover is the support variant of recovery: it takes the email as a
// query parameter and includes the full session in the response.
func (h *AdminHandler) Recover(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if strings.TrimSpace(email) == "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, services.ReasonInvalidEmail, "Query parameter email is required")
		return
	}

	result, err := h.recovery.RecoverByEmail(r.Context(), email, true)
	if err != nil {
		respondWithServiceError(w, r, "recover", err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, AdminRecoverResponse{Success: true, Recovery: result})
}

// RevokeToken blacklists an admin token for the rest of its lifetime.
func (h *AdminHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 8192)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	token := req.Token
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}

	if err := h.tokens.RevokeToken(r.Context(), token); err != nil {
		if errors.Is(err, services.ErrStorageFailure) {
			respondWithServiceError(w, r, "revoke", err)
			return
		}
		log.Warn().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Token revocation failed")
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_token", "Token could not be revoked")
		return
	}

	utils.RespondWithMessage(w, r, "Token revoked")
}
