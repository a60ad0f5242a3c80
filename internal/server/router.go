package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pathshala-app/pathshala/internal/remote"
)

const deviceIDContextKey = "pathshala_device_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingJournal       = errors.New("journal dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// DeviceTokenManager issues and validates the bearer tokens devices use
// against the sync endpoints.
type DeviceTokenManager interface {
	IssueDeviceToken(ctx context.Context, deviceID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the sync authority's HTTP surface.
type Dependencies struct {
	TokenManager DeviceTokenManager
	Journal      *Journal
	Logger       *zap.Logger
}

// NewHTTPHandler builds the authority router: token exchange, push, pull.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Journal == nil {
		return nil, errMissingJournal
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:  deps.TokenManager,
		journal: deps.Journal,
		logger:  logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/device", handler.handleDeviceAuth)

	protected := router.Group("/sync")
	protected.Use(handler.authorizeRequest)
	protected.POST("/push", handler.handlePush)
	protected.GET("/pull", handler.handlePull)

	return router, nil
}

type httpHandler struct {
	tokens  DeviceTokenManager
	journal *Journal
	logger  *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type deviceAuthRequestPayload struct {
	DeviceID string `json:"device_id"`
}

type deviceAuthResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleDeviceAuth(c *gin.Context) {
	var request deviceAuthRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DeviceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.IssueDeviceToken(c.Request.Context(), strings.TrimSpace(request.DeviceID))
	if err != nil {
		h.logger.Error("failed to issue device token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, deviceAuthResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type pushRequestPayload struct {
	BatchID string                `json:"batch_id"`
	Records []remote.ChangeRecord `json:"records"`
}

func (h *httpHandler) handlePush(c *gin.Context) {
	deviceID := c.GetString(deviceIDContextKey)
	if deviceID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request pushRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.BatchID) == "" || len(request.Records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	accepted := h.journal.Record(deviceID, request.Records)
	h.logger.Info("sync batch accepted",
		zap.String("device_id", deviceID),
		zap.String("batch_id", request.BatchID),
		zap.Int("record_count", accepted))
	c.JSON(http.StatusOK, remote.PushResult{Accepted: accepted})
}

type pullResponsePayload struct {
	Records []remote.ChangeRecord `json:"records"`
}

func (h *httpHandler) handlePull(c *gin.Context) {
	deviceID := c.GetString(deviceIDContextKey)
	if deviceID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor"})
		return
	}

	records := h.journal.ChangesSince(deviceID, since)
	if records == nil {
		records = []remote.ChangeRecord{}
	}
	c.JSON(http.StatusOK, pullResponsePayload{Records: records})
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
	deviceID, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine device churn, not an incident.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(deviceIDContextKey, deviceID)
	c.Next()
}
