package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/auth"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// AuthHandler serves the only public endpoints: access-code login for
// end-users and the identity-gated admin login.
type AuthHandler struct {
	codes     repository.AccessCodeStore
	gate      *auth.Gate
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthHandler(
	codes repository.AccessCodeStore,
	gate *auth.Gate,
	jwtSecret string,
	tokenTTL time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		codes:     codes,
		gate:      gate,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

type loginRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
}

type adminLoginRequest struct {
	IDToken  string `json:"id_token"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role"`
}

// Login handles POST /v1/auth/login, the end-user entry point. The access
// code must exist, be active, and be unexpired; the three failures are
// reported distinctly so the client can guide the user.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.codes.Get(c.Request.Context(), req.AccessCode)
	if err != nil {
		h.logger.Error("access code lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if code == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid access code"})
		return
	}
	now := time.Now().UnixMilli()
	if code.Expired(now) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "this chat session has expired"})
		return
	}
	if code.Status != models.CodeStatusActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "this chat session is blocked"})
		return
	}

	token, err := auth.GenerateToken(models.RoleUser, code.ID, "", h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, Role: models.RoleUser})
}

// AdminLogin handles POST /v1/auth/admin. Primary path is a Firebase ID
// token whose email must match the single allow-listed administrator; the
// bcrypt password is a fallback for deployments without Firebase.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IDToken == "" && req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_token or password required"})
		return
	}

	email := h.gate.AdminEmail()
	var err error
	if req.IDToken != "" {
		email, err = h.gate.VerifyAdminToken(c.Request.Context(), req.IDToken)
	} else {
		err = h.gate.VerifyAdminPassword(req.Password)
	}
	if errors.Is(err, auth.ErrNotAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "this identity is not the administrator"})
		return
	}
	if err != nil {
		h.logger.Warn("admin login rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	token, err := auth.GenerateToken(models.RoleAdmin, "", email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, Role: models.RoleAdmin})
}
