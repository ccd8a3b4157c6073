package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/repairhub/api/internal/auth"
	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/logger"
	"github.com/repairhub/api/internal/mail"
	"github.com/repairhub/api/internal/middleware"
)

// AuthStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type AuthStore interface {
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	RevokeToken(ctx context.Context, arg database.RevokeTokenParams) (int64, error)
	IsTokenRevoked(ctx context.Context, jti uuid.UUID) (bool, error)
	CreatePasswordReset(ctx context.Context, arg database.CreatePasswordResetParams) (database.PasswordReset, error)
	DeletePasswordReset(ctx context.Context, id uuid.UUID) error
	GetUserByResetToken(ctx context.Context, tokenHash []byte) (database.User, error)
	ResetPasswordWithToken(ctx context.Context, arg database.ResetPasswordWithTokenParams) (uuid.UUID, error)
}

// AuthConfig carries token settings for AuthHandler.
type AuthConfig struct {
	JWTSecret    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ResetTTL     time.Duration
	ResetURLBase string
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store  AuthStore
	mailer mail.Mailer
	cfg    AuthConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store AuthStore, mailer mail.Mailer, cfg AuthConfig) *AuthHandler {
	return &AuthHandler{store: store, mailer: mailer, cfg: cfg}
}

// RegisterRoutes registers the public auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/verify", h.Verify)
	r.Post("/auth/forgot-password", h.ForgotPassword)
	r.Post("/auth/reset-password", h.ResetPassword)
}

// RegisterProtectedRoutes registers endpoints that need an access token.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
}

// --- Request / Response types ---

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsStaff   bool      `json:"is_staff"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u database.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Phone:     u.Phone,
		Address:   u.Address,
		IsStaff:   u.IsStaff,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// --- Handlers ---

// Register creates a customer account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		writeError(w, http.StatusBadRequest, kindValidation, "username, email and password are required")
		return
	case !strings.Contains(req.Email, "@"):
		writeError(w, http.StatusBadRequest, kindValidation, "invalid email")
		return
	case req.ConfirmPassword != "" && req.ConfirmPassword != req.Password:
		writeError(w, http.StatusBadRequest, kindValidation, auth.ErrPasswordMismatch.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password, req.Username); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.FromCtx(r.Context()).Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	user, err := h.store.CreateUser(r.Context(), database.CreateUserParams{
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hash,
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		IsStaff:        false,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, kindValidation, "username or email already taken")
			return
		}
		logger.FromCtx(r.Context()).Error("create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login handles username + password authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "username and password are required")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid credentials")
			return
		}
		logger.FromCtx(r.Context()).Error("get user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	if !user.IsActive || auth.CheckPassword(user.HashedPassword, req.Password) != nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid credentials")
		return
	}

	h.respondWithTokens(w, r, user)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked so it cannot be replayed.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}

	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "refresh_token is required")
		return
	}

	claims, err := auth.ValidateRefreshToken(h.cfg.JWTSecret, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid refresh token")
		return
	}
	jti, err := claims.TokenID()
	if err != nil || claims.ExpiresAt == nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid refresh token")
		return
	}

	revoked, err := h.store.IsTokenRevoked(r.Context(), jti)
	if err != nil {
		logger.FromCtx(r.Context()).Error("check token revocation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	if revoked {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "refresh token has been revoked")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, kindUnauthorized, "user not found")
			return
		}
		logger.FromCtx(r.Context()).Error("get user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "user is inactive")
		return
	}

	// Zero rows means a concurrent refresh already consumed this token.
	n, err := h.store.RevokeToken(r.Context(), database.RevokeTokenParams{
		Jti:       jti,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
	if err != nil {
		logger.FromCtx(r.Context()).Error("revoke refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	if n == 0 {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "refresh token has been revoked")
		return
	}

	h.respondWithTokens(w, r, user)
}

// Verify reports whether an access token is valid.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, 0, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "token is required")
		return
	}
	if _, err := auth.ValidateToken(h.cfg.JWTSecret, req.Token); err != nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// Logout revokes the caller's refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller := middleware.ClaimsFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "not authenticated")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, 0, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "refresh_token is required")
		return
	}

	claims, err := auth.ValidateRefreshToken(h.cfg.JWTSecret, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid refresh token")
		return
	}
	jti, err := claims.TokenID()
	if err != nil || claims.ExpiresAt == nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid refresh token")
		return
	}
	if claims.UserID != caller.UserID {
		writeError(w, http.StatusForbidden, kindForbidden, "refresh token belongs to another user")
		return
	}

	if _, err := h.store.RevokeToken(r.Context(), database.RevokeTokenParams{
		Jti:       jti,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		logger.FromCtx(r.Context()).Error("revoke refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		logger.FromCtx(r.Context()).Error("get user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ForgotPassword emails a single-use reset link.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "email is required")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, kindValidation, "no account with this email")
			return
		}
		logger.FromCtx(r.Context()).Error("get user by email", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusBadRequest, kindValidation, "no account with this email")
		return
	}

	token, digest, err := auth.NewResetToken()
	if err != nil {
		logger.FromCtx(r.Context()).Error("generate reset token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	reset, err := h.store.CreatePasswordReset(r.Context(), database.CreatePasswordResetParams{
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: time.Now().Add(h.cfg.ResetTTL),
	})
	if err != nil {
		logger.FromCtx(r.Context()).Error("create password reset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n",
			user.Username, h.cfg.ResetTTL, resetLink(h.cfg.ResetURLBase, token)),
	}
	if err := h.mailer.Send(r.Context(), msg); err != nil {
		log := logger.FromCtx(r.Context())
		log.Error("send reset email", zap.Error(err))
		// Nobody received this token, so it must not stay redeemable.
		if derr := h.store.DeletePasswordReset(r.Context(), reset.ID); derr != nil {
			log.Error("delete undelivered password reset", zap.Error(derr))
		}
		writeError(w, http.StatusBadGateway, kindExternal, "could not send reset email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "password reset email sent"})
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}

	switch {
	case req.Token == "" || req.NewPassword == "":
		writeError(w, http.StatusBadRequest, kindValidation, "token and new_password are required")
		return
	case req.NewPassword != req.ConfirmPassword:
		writeError(w, http.StatusBadRequest, kindValidation, auth.ErrPasswordMismatch.Error())
		return
	}

	digest := auth.DigestResetToken(req.Token)
	user, err := h.store.GetUserByResetToken(r.Context(), digest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid or expired link")
			return
		}
		logger.FromCtx(r.Context()).Error("get user by reset token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword, user.Username); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.FromCtx(r.Context()).Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	if _, err := h.store.ResetPasswordWithToken(r.Context(), database.ResetPasswordWithTokenParams{
		TokenHash:      digest,
		HashedPassword: hash,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid or expired link")
			return
		}
		logger.FromCtx(r.Context()).Error("reset password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "password has been reset"})
}

// --- Helpers ---

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, r *http.Request, user database.User) {
	accessToken, err := auth.GenerateToken(h.cfg.JWTSecret, h.cfg.AccessTTL, user.ID, user.Username, user.IsStaff)
	if err != nil {
		logger.FromCtx(r.Context()).Error("sign access token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	refresh, err := auth.GenerateRefreshToken(h.cfg.JWTSecret, h.cfg.RefreshTTL, user.ID)
	if err != nil {
		logger.FromCtx(r.Context()).Error("sign refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
		User:         toUserResponse(user),
	})
}

func resetLink(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
