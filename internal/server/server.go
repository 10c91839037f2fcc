package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"studydesk/internal/app"
	"studydesk/internal/ratelimit"
	"studydesk/internal/util"
	"studydesk/pkg/domain"
)

const (
	maxJSONBody  = 1 << 20
	maxUploadCnt = 10
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	CORSOrigin     string
	MaxUploadBytes int64

	// Redis-backed rate limiting for the public auth endpoints. An empty
	// addr disables limiting (local development and tests).
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
}

// Server exposes the REST endpoints for the backend.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	corsOrigin     string
	maxUploadBytes int64
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		corsOrigin:     cfg.CORSOrigin,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		signupLimit := cfg.SignupRateLimitPerMinute
		if signupLimit <= 0 {
			signupLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		var err error
		s.signupLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studydesk:ratelimit:signup", signupLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init signup limiter: %w", err)
		}
		s.loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studydesk:ratelimit:login", loginLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
	} else {
		slog.Warn("redis addr not set, auth rate limiting disabled")
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/v1/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin)
	s.mux.Handle("/api/v1/users/profile", s.authenticated(s.handleProfile))

	// pdfs
	s.mux.Handle("/api/v1/pdfs", s.authenticated(s.handleListPDFs))
	s.mux.Handle("/api/v1/pdfs/upload", s.authenticated(s.handleUploadPDFs))
	// Callback endpoint for the AI service; unauthenticated by design.
	s.mux.HandleFunc("/api/v1/pdfs/update-status", s.handleUpdateStatus)

	// chats
	s.mux.Handle("/api/v1/chats", s.authenticated(s.handleChats))
	s.mux.Handle("/api/v1/chats/", s.authenticated(s.handleChatByID))

	// quizzes
	s.mux.Handle("/api/v1/quizzes/generate/", s.authenticated(s.handleGenerateQuiz))
	s.mux.Handle("/api/v1/quizzes/submit/", s.authenticated(s.handleSubmitQuiz))
	s.mux.Handle("/api/v1/quizzes/attempts/", s.authenticated(s.handleAttempts))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth.token", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		user, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, "auth.token", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}
		next(w, r, user)
	})
}

// auth handlers

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "auth.signup", "rate_limited")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.SignUp(req.Name, req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", err.Error())
		s.writeAppError(w, r, err, "Server error during user registration")
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail")
		s.writeAppError(w, r, err, "Server error during login")
		return
	}
	s.audit(r, "auth.login", "success")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	profile, err := s.app.Profile(user.ID)
	if err != nil {
		s.writeAppError(w, r, err, "Server error while fetching user profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// pdf handlers

func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	pdfs, err := s.app.ListReadyPDFs()
	if err != nil {
		s.writeAppError(w, r, err, "Server error while fetching PDFs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pdfs": pdfs})
}

func (s *Server) handleUploadPDFs(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	headers := r.MultipartForm.File["pdfs"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded.")
		return
	}
	if len(headers) > maxUploadCnt {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", maxUploadCnt))
		return
	}
	files := make([]app.UploadFile, 0, len(headers))
	for _, header := range headers {
		if !isPDFContentType(header) {
			writeError(w, http.StatusBadRequest, "Invalid file type. Only PDFs are allowed.")
			return
		}
		data, err := readMultipartFile(header)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read uploaded file")
			return
		}
		files = append(files, app.UploadFile{Filename: header.Filename, Data: data})
	}
	pdfs, err := s.app.UploadPDFs(r.Context(), user.ID, files)
	if err != nil {
		s.writeAppError(w, r, err, "Server error during file upload")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("%d file(s) are being processed.", len(pdfs)),
		"pdfs":    pdfs,
	})
}

type updateStatusRequest struct {
	PDFID           string   `json:"pdfId"`
	Status          string   `json:"status"`
	VectorStorePath string   `json:"vectorStorePath"`
	YouTubeTopics   []string `json:"youtubeTopics"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PDFID == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "pdfId and status are required")
		return
	}
	err := s.app.UpdatePDFStatus(r.Context(), req.PDFID, domain.PDFStatus(req.Status), req.VectorStorePath, req.YouTubeTopics)
	if err != nil {
		s.writeAppError(w, r, err, "Server error while updating PDF status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Status for PDF %s updated to %s.", req.PDFID, req.Status),
	})
}

// chat handlers

type createChatRequest struct {
	PDFIDs []string `json:"pdfIds"`
	Title  string   `json:"title"`
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req createChatRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		chat, err := s.app.CreateChat(user.ID, req.PDFIDs, req.Title)
		if err != nil {
			s.writeAppError(w, r, err, "Server error while creating chat")
			return
		}
		writeJSON(w, http.StatusCreated, chat)
	case http.MethodGet:
		chats, err := s.app.ListChats(user.ID)
		if err != nil {
			s.writeAppError(w, r, err, "Server error while fetching chats")
			return
		}
		writeJSON(w, http.StatusOK, chats)
	default:
		methodNotAllowed(w)
	}
}

// /api/v1/chats/{id}/messages and /api/v1/chats/{id}/details
func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/chats/")
	parts := strings.SplitN(path, "/", 2)
	chatID := parts[0]
	if chatID == "" || len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	switch parts[1] {
	case "messages":
		switch r.Method {
		case http.MethodGet:
			s.handleListMessages(w, r, user, chatID)
		case http.MethodPost:
			s.handleSendMessage(w, r, user, chatID)
		default:
			methodNotAllowed(w)
		}
	case "details":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		details, err := s.app.ChatDetails(user.ID, chatID)
		if err != nil {
			s.writeAppError(w, r, err, "Server error while fetching chat details")
			return
		}
		writeJSON(w, http.StatusOK, details)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, user domain.User, chatID string) {
	messages, err := s.app.Messages(user.ID, chatID)
	if err != nil {
		s.writeAppError(w, r, err, "Server error while fetching messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage relays the AI reply as a plain-text stream. Once the
// first chunk is written no error response is possible; the stream simply
// ends and clients detect the missing assistant message.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User, chatID string) {
	var req sendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sink := newStreamWriter(w)
	err := s.app.StreamAnswer(r.Context(), user.ID, chatID, req.Content, sink)
	if err != nil {
		if sink.Started() {
			util.LoggerFromContext(r.Context()).Error("stream aborted after start", "chat_id", chatID, "err", err)
			return
		}
		s.writeAppError(w, r, err, "Failed to get response from AI service.")
		return
	}
	if !sink.Started() {
		// Empty reply: still a successful plain-text response.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

// quiz handlers

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	chatID := strings.TrimPrefix(r.URL.Path, "/api/v1/quizzes/generate/")
	if chatID == "" || strings.Contains(chatID, "/") {
		http.NotFound(w, r)
		return
	}
	quiz, err := s.app.GenerateQuiz(r.Context(), user.ID, chatID)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to generate quiz.")
		return
	}
	// Ideal answers stay server-side; only the redacted view goes out.
	writeJSON(w, http.StatusCreated, quiz.Redacted())
}

type submitQuizRequest struct {
	Answers []domain.Answer `json:"answers"`
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	quizID := strings.TrimPrefix(r.URL.Path, "/api/v1/quizzes/submit/")
	if quizID == "" || strings.Contains(quizID, "/") {
		http.NotFound(w, r)
		return
	}
	var req submitQuizRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	attempt, err := s.app.SubmitQuiz(r.Context(), user.ID, quizID, req.Answers)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to submit quiz.")
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// /api/v1/quizzes/attempts/chat/{chatId} and /api/v1/quizzes/attempts/{attemptId}
func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/quizzes/attempts/")
	if chatID, ok := strings.CutPrefix(path, "chat/"); ok {
		if chatID == "" || strings.Contains(chatID, "/") {
			http.NotFound(w, r)
			return
		}
		attempts, err := s.app.Attempts(user.ID, chatID)
		if err != nil {
			s.writeAppError(w, r, err, "Failed to fetch quiz attempts.")
			return
		}
		writeJSON(w, http.StatusOK, attempts)
		return
	}
	attemptID := path
	if attemptID == "" || strings.Contains(attemptID, "/") {
		http.NotFound(w, r)
		return
	}
	attempt, err := s.app.AttemptDetails(user.ID, attemptID)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch quiz attempt details.")
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// helpers

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeAppError maps application errors onto the response taxonomy.
// Unexpected errors are logged with context and answered with the generic
// fallback message only.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ve *app.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, app.ErrEmailExists),
		errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrPDFNotFound),
		errors.Is(err, app.ErrChatNotFound),
		errors.Is(err, app.ErrQuizNotFound),
		errors.Is(err, app.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func isPDFContentType(header *multipart.FileHeader) bool {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if mediaType, _, found := strings.Cut(contentType, ";"); found {
		contentType = strings.TrimSpace(mediaType)
	}
	return contentType == "application/pdf"
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
