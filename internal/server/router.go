// Package server exposes the user store over a small authenticated HTTP
// surface for operators: CRUD on user accounts and lookups through linked
// OAuth accounts. Authentication flows for end users live in the consuming
// framework, not here.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lattice-auth/userstore"
	"github.com/lattice-auth/userstore/internal/model"
)

const operatorContextKey = "userstore_operator"

var (
	errMissingUserDatabase  = errors.New("user database dependency required")
	errMissingValidator     = errors.New("admin token validator dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// AdminTokenValidator checks admin bearer tokens and returns their subject.
type AdminTokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP handler to its collaborators.
type Dependencies struct {
	Users     *userstore.OAuthDatabase[model.User]
	Validator AdminTokenValidator
	Logger    *zap.Logger
}

// NewHTTPHandler builds the admin API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUserDatabase
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:     deps.Users,
		validator: deps.Validator,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users", handler.handleGetUserByEmail)
	protected.POST("/users", handler.handleCreateUser)
	protected.GET("/users/:id", handler.handleGetUser)
	protected.PATCH("/users/:id", handler.handleUpdateUser)
	protected.DELETE("/users/:id", handler.handleDeleteUser)
	protected.GET("/users/:id/oauth-accounts", handler.handleListOAuthAccounts)
	protected.POST("/users/:id/oauth-accounts", handler.handleLinkOAuthAccount)
	protected.GET("/oauth/:provider/:account_id/user", handler.handleGetUserByOAuthAccount)

	return router, nil
}

type httpHandler struct {
	users     *userstore.OAuthDatabase[model.User]
	validator AdminTokenValidator
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	operator, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("admin token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorContextKey, operator)
	c.Next()
}

type createUserPayload struct {
	Email          string `json:"email" binding:"required"`
	HashedPassword string `json:"hashed_password" binding:"required"`
	DisplayName    string `json:"display_name"`
	IsActive       *bool  `json:"is_active"`
	IsSuperuser    bool   `json:"is_superuser"`
	IsVerified     bool   `json:"is_verified"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	active := true
	if request.IsActive != nil {
		active = *request.IsActive
	}
	user := model.User{
		BaseUser: userstore.BaseUser{
			Email:          request.Email,
			HashedPassword: request.HashedPassword,
			IsActive:       active,
			IsSuperuser:    request.IsSuperuser,
			IsVerified:     request.IsVerified,
		},
		DisplayName: request.DisplayName,
	}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleGetUserByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_required"})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("failed to load user by email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil || len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if _, taken := updates["id"]; taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "immutable_column"})
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	if err := h.users.Update(c.Request.Context(), user, updates); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
			return
		}
		h.logger.Error("failed to update user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), user); err != nil {
		h.logger.Error("failed to delete user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

type linkOAuthAccountPayload struct {
	Provider     string  `json:"provider" binding:"required"`
	AccountID    string  `json:"account_id" binding:"required"`
	AccountEmail string  `json:"account_email" binding:"required"`
	AccessToken  string  `json:"access_token" binding:"required"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresAt    *int64  `json:"expires_at"`
}

func (h *httpHandler) handleLinkOAuthAccount(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var request linkOAuthAccountPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	account := userstore.OAuthAccount{
		Provider:     request.Provider,
		AccountID:    request.AccountID,
		AccountEmail: request.AccountEmail,
		AccessToken:  request.AccessToken,
		RefreshToken: request.RefreshToken,
		ExpiresAt:    request.ExpiresAt,
	}
	if err := h.users.AddOAuthAccount(c.Request.Context(), user, &account); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "account_taken"})
			return
		}
		h.logger.Error("failed to link oauth account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "link_failed"})
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (h *httpHandler) handleListOAuthAccounts(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	accounts, err := h.users.OAuthAccounts(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("failed to list oauth accounts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"oauth_accounts": accounts})
}

func (h *httpHandler) handleGetUserByOAuthAccount(c *gin.Context) {
	provider := c.Param("provider")
	accountID := c.Param("account_id")

	user, err := h.users.GetByOAuthAccount(c.Request.Context(), provider, accountID)
	if err != nil {
		h.logger.Error("failed to resolve oauth account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return uuid.Nil, false
	}
	return id, true
}

// The stores propagate driver errors unmodified; the HTTP surface maps the
// uniqueness violations it can recognize to 409.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "UNIQUE constraint failed") ||
		strings.Contains(message, "duplicate key value")
}
