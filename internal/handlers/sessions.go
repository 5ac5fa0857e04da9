package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cvperfect/SessionService/internal/extract"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/services"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SessionManager is the subset of *services.SessionService used by handlers.
type SessionManager interface {
	Save(ctx context.Context, session *models.Session) (int, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*models.Session, error)
}

// SessionRecoverer is implemented by *services.RecoveryService.
type SessionRecoverer interface {
	RecoverByEmail(ctx context.Context, email string, includeSession bool) (*services.RecoveryResult, error)
}

// SessionHandler serves the public session endpoints used by the CV
// frontend between checkout and the success page. None of them require
// authentication; session IDs are unguessable checkout IDs.
type SessionHandler struct {
	sessions       SessionManager
	recovery       SessionRecoverer
	maxBodyBytes   int64
	maxUploadBytes int64
}

// NewSessionHandler creates the public session handler.
//
// Example:
//
//	sessionHandler := handlers.NewSessionHandler(sessionSvc, recoverySvc, &cfg.Upload)
//	r.Post("/api/v1/sessions", sessionHandler.Save)
//	r.Get("/api/v1/sessions/{sessionID}", sessionHandler.Get)
func NewSessionHandler(sessions SessionManager, recovery SessionRecoverer, upload *config.UploadConfig) *SessionHandler {
	return &SessionHandler{
		sessions:       sessions,
		recovery:       recovery,
		maxBodyBytes:   upload.MaxBodyBytes,
		maxUploadBytes: upload.MaxUploadBytes,
	}
}

// SaveSessionRequest is the body of POST /api/v1/sessions.
//
// JSON example:
//
//	{
//	  "sessionId": "cs_test_a1b2c3",
//	  "email": "jan@example.com",
//	  "cvData": "Jan Kowalski\nSenior Developer...",
//	  "jobPosting": "We are hiring...",
//	  "plan": "premium",
//	  "template": "modern",
//	  "photo": "data:image/png;base64,iVBORw0...",
//	  "source": "checkout"
//	}
type SaveSessionRequest struct {
	SessionID  string `json:"sessionId"`
	Email      string `json:"email"`
	CVData     string `json:"cvData"`
	JobPosting string `json:"jobPosting"`
	Plan       string `json:"plan"`
	Template   string `json:"template"`
	Photo      string `json:"photo"`
	Source     string `json:"source"`
}

// SaveSessionResponse confirms a stored session. DataLength is the byte
// length of cvData as persisted, so the client can detect truncation.
type SaveSessionResponse struct {
	Success    bool   `json:"success"`
	SessionID  string `json:"sessionId"`
	DataLength int    `json:"dataLength"`
}

// SessionResponse wraps a full session.
type SessionResponse struct {
	Success bool            `json:"success"`
	Session *models.Session `json:"session"`
}

// RecoverRequest is the body of POST /api/v1/sessions/recover.
type RecoverRequest struct {
	Email string `json:"email"`
}

// RecoverResponse points a user back at their latest session.
type RecoverResponse struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"sessionId"`
	Plan      models.Plan `json:"plan"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ExtractResponse carries the text extracted from an uploaded CV.
type ExtractResponse struct {
	Success bool   `json:"success"`
	CVData  string `json:"cvData"`
	Length  int    `json:"length"`
}

// Save stores a session, replacing any previous version with the same ID.
//
// Request metadata (device, client IP, Accept-Language, source) is
// captured from the request and stored with the session.
//
// Responses:
//   - 200 {success, sessionId, dataLength}
//   - 400 invalid JSON or failed validation
//   - 413 body larger than the configured limit
//   - 500 storage failure
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	source := req.Source
	if source == "" {
		source = "web"
	}

	session := &models.Session{
		SessionID:  req.SessionID,
		Email:      req.Email,
		CVData:     req.CVData,
		JobPosting: req.JobPosting,
		Plan:       models.Plan(req.Plan),
		Template:   req.Template,
		Photo:      req.Photo,
		Metadata: models.Metadata{
			DeviceInfo: services.ExtractDeviceInfo(r.UserAgent()),
			IPAddress:  utils.ExtractClientIP(r),
			Language:   primaryLanguage(r.Header.Get("Accept-Language")),
			Source:     source,
		},
	}

	n, err := h.sessions.Save(r.Context(), session)
	if err != nil {
		respondWithServiceError(w, r, "save", err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, SaveSessionResponse{
		Success:    true,
		SessionID:  session.SessionID,
		DataLength: n,
	})
}

// Get returns the full session, CV text and photo included.
//
// Responses:
//   - 200 {success, session}
//   - 400 malformed session ID
//   - 404 no such session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		respondWithServiceError(w, r, "get", err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, SessionResponse{Success: true, Session: session})
}

// Delete removes a session. Deleting a missing session succeeds.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		respondWithServiceError(w, r, "delete", err)
		return
	}

	utils.RespondWithMessage(w, r, "Session deleted")
}

// Recover finds the latest session for an email. The session payload is
// never returned here; the client loads it by ID.
//
// Responses:
//   - 200 {success, sessionId, plan, createdAt}
//   - 400 invalid_email
//   - 404 no_session_found | session_expired
func (h *SessionHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	result, err := h.recovery.RecoverByEmail(r.Context(), req.Email, false)
	if err != nil {
		respondWithServiceError(w, r, "recover", err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, RecoverResponse{
		Success:   true,
		SessionID: result.SessionID,
		Plan:      result.Plan,
		CreatedAt: result.CreatedAt.UTC(),
	})
}

// Extract converts an uploaded CV (multipart field "file": txt, pdf or
// docx) to plain text. Nothing is stored; the client sends the text back
// as cvData when saving the session.
//
// Responses:
//   - 200 {success, cvData, length}
//   - 400 missing file or unreadable document
//   - 413 file larger than the configured limit
//   - 415 unsupported file type
//   - 422 document without extractable text
func (h *SessionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	limit := h.maxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	// Multipart framing adds a little on top of the file itself.
	bodyLimit := limit + 64<<10
	if r.ContentLength > bodyLimit {
		utils.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "File is too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "File is too large")
			return
		}
		utils.RespondWithError(w, r, http.StatusBadRequest, "missing_file", "A CV file is required in field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_file", "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > limit {
		utils.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "File is too large")
		return
	}

	mimeType := extract.DetectType(header.Filename, header.Header.Get("Content-Type"), data)
	text, err := extract.Text(mimeType, data)
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		utils.RespondWithError(w, r, http.StatusUnsupportedMediaType, "unsupported_type", "Only TXT, PDF and DOCX files are supported")
		return
	case errors.Is(err, extract.ErrNoText):
		utils.RespondWithError(w, r, http.StatusUnprocessableEntity, "no_text", "The document contains no extractable text")
		return
	case err != nil:
		log.Warn().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Str("mime_type", mimeType).
			Int("bytes", len(data)).
			Msg("CV extraction failed")
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid_file", "The document could not be read")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, ExtractResponse{
		Success: true,
		CVData:  text,
		Length:  len(text),
	})
}

// primaryLanguage returns the first tag of an Accept-Language header:
// "pl-PL,pl;q=0.9,en;q=0.8" gives "pl-PL".
func primaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}
