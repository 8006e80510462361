package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/middleware"
	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/SergeiKhy/shortlink-directory/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	directory service.DirectoryService
	resolver  service.Resolver
	baseURL   string
	logger    *zap.Logger
}

func NewLinkHandler(directory service.DirectoryService, resolver service.Resolver, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		directory: directory,
		resolver:  resolver,
		baseURL:   baseURL,
		logger:    logger,
	}
}

type CreateLinkRequest struct {
	URL        string `json:"url"`
	CustomCode string `json:"custom_code,omitempty"`
	Expiration string `json:"expiration,omitempty"`
}

type SetExpirationRequest struct {
	Expiration string `json:"expiration"`
}

type LinkResponse struct {
	ID             int64     `json:"id"`
	ShortCode      string    `json:"short_code"`
	ShortURL       string    `json:"short_url"`
	DestinationURL string    `json:"destination_url"`
	AccessCount    int64     `json:"access_count"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Active         bool      `json:"active"`
}

type ListLinksResponse struct {
	Links        []LinkResponse `json:"links"`
	ActiveCount  int            `json:"active_count"`
	ExpiredCount int            `json:"expired_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new short link owned by the caller
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	owner, _ := middleware.OwnerFromContext(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be a JSON object",
		})
		return
	}

	input := &models.ShortenInput{DestinationURL: req.URL}
	if req.CustomCode != "" {
		input.CustomCode = &req.CustomCode
	}
	if req.Expiration != "" {
		expiresAt, err := service.ParseInstant(req.Expiration)
		if err != nil {
			h.writeError(c, "create link", err)
			return
		}
		input.ExpiresAt = &expiresAt
	}

	link, err := h.directory.Shorten(c.Request.Context(), owner, input)
	if err != nil {
		h.writeError(c, "create link", err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link, time.Now()))
}

// ListLinks godoc
// @Summary List the caller's links
// @Description Newest first, with active and expired counts
// @Tags links
// @Produce json
// @Success 200 {object} ListLinksResponse
// @Router /api/v1/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	owner, _ := middleware.OwnerFromContext(c)

	listing, err := h.directory.ListForOwner(c.Request.Context(), owner)
	if err != nil {
		h.writeError(c, "list links", err)
		return
	}

	response := ListLinksResponse{
		Links:        make([]LinkResponse, 0, len(listing.Links)),
		ActiveCount:  len(listing.Active),
		ExpiredCount: len(listing.Expired),
	}
	for i := range listing.Links {
		response.Links = append(response.Links, h.toResponse(&listing.Links[i], listing.EvaluatedAt))
	}

	c.JSON(http.StatusOK, response)
}

// GetLink godoc
// @Summary Get one of the caller's links
// @Tags links
// @Produce json
// @Param id path int true "Link ID"
// @Success 200 {object} LinkResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{id} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	owner, _ := middleware.OwnerFromContext(c)

	id, ok := h.linkID(c)
	if !ok {
		return
	}

	link, err := h.directory.GetLink(c.Request.Context(), owner, id)
	if err != nil {
		h.writeError(c, "get link", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link, time.Now()))
}

// SetExpiration godoc
// @Summary Change the expiration of a link
// @Description A past instant is accepted as long as it is after creation
// @Tags links
// @Accept json
// @Produce json
// @Param id path int true "Link ID"
// @Param request body SetExpirationRequest true "New expiration"
// @Success 200 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{id}/expiration [patch]
func (h *LinkHandler) SetExpiration(c *gin.Context) {
	owner, _ := middleware.OwnerFromContext(c)

	id, ok := h.linkID(c)
	if !ok {
		return
	}

	var req SetExpirationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be a JSON object",
		})
		return
	}

	expiresAt, err := service.ParseInstant(req.Expiration)
	if err != nil {
		h.writeError(c, "set expiration", err)
		return
	}

	link, err := h.directory.SetExpiration(c.Request.Context(), owner, id, expiresAt)
	if err != nil {
		h.writeError(c, "set expiration", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link, time.Now()))
}

// DeleteLink godoc
// @Summary Delete a short link
// @Tags links
// @Produce json
// @Param id path int true "Link ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{id} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	owner, _ := middleware.OwnerFromContext(c)

	id, ok := h.linkID(c)
	if !ok {
		return
	}

	if err := h.directory.Remove(c.Request.Context(), owner, id); err != nil {
		h.writeError(c, "delete link", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}

// Redirect godoc
// @Summary Redirect to the destination URL
// @Tags links
// @Param code path string true "Short code"
// @Success 302 {object} nil
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	destination, err := h.resolver.Resolve(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, "redirect", err)
		return
	}

	c.Redirect(http.StatusFound, destination)
}

// linkID разбирает идентификатор из пути; нечисловой id не может существовать
func (h *LinkHandler) linkID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
		return 0, false
	}
	return id, true
}

func (h *LinkHandler) toResponse(link *models.Link, now time.Time) LinkResponse {
	return LinkResponse{
		ID:             link.ID,
		ShortCode:      link.ShortCode,
		ShortURL:       h.baseURL + "/" + link.ShortCode,
		DestinationURL: link.DestinationURL,
		AccessCount:    link.AccessCount,
		CreatedAt:      link.CreatedAt,
		ExpiresAt:      link.ExpiresAt,
		Active:         service.IsActive(link, now),
	}
}

// writeError отображает ошибку сервиса в HTTP ответ по её виду
func (h *LinkHandler) writeError(c *gin.Context, op string, err error) {
	kind := service.KindOf(err)
	status, body := errorResponse(kind, err)

	fields := []zap.Field{
		zap.String("op", op),
		zap.String("kind", kind.String()),
		zap.Error(err),
	}
	switch kind {
	case service.KindInternal, service.KindUnavailable:
		h.logger.Error("Request failed", fields...)
	default:
		h.logger.Warn("Request rejected", fields...)
	}

	if kind.Retryable() {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, body)
}

func errorResponse(kind service.Kind, err error) (int, ErrorResponse) {
	switch kind {
	case service.KindInvalidInput:
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			return http.StatusBadRequest, ErrorResponse{Error: "invalid_url", Message: "URL must be an absolute http or https address"}
		case errors.Is(err, service.ErrInvalidCode):
			return http.StatusBadRequest, ErrorResponse{Error: "invalid_code", Message: "Custom code must be 6-32 alphanumeric characters"}
		default:
			return http.StatusBadRequest, ErrorResponse{Error: "invalid_date", Message: "Expiration is not a valid instant for this link"}
		}
	case service.KindConflict:
		if errors.Is(err, service.ErrAllocationExhausted) {
			return http.StatusConflict, ErrorResponse{Error: "allocation_exhausted", Message: "Could not allocate a free short code, try again"}
		}
		return http.StatusConflict, ErrorResponse{Error: "code_taken", Message: "Short code is already taken"}
	case service.KindQuotaExceeded:
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "quota_exceeded", Message: "Link limit reached, delete a link first"}
	case service.KindNotAuthorized:
		return http.StatusForbidden, ErrorResponse{Error: "not_authorized", Message: "Link belongs to another owner"}
	case service.KindNotFound:
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Link not found"}
	case service.KindUnavailable:
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "Storage is temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"}
	}
}
