package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ledgerchat/ledgerchat/internal/identity"
)

// LinkHandler consumes manual-link tokens: a signed-in user posts the token
// from their chat together with their account email, and every tenant that
// email belongs to gets linked to the chat sender.
type LinkHandler struct {
	store  *identity.DBStore
	tokens *identity.LinkTokenIssuer
	logger *slog.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(log *slog.Logger, store *identity.DBStore, tokens *identity.LinkTokenIssuer) *LinkHandler {
	return &LinkHandler{
		store:  store,
		tokens: tokens,
		logger: log.With(slog.String("handler", "link")),
	}
}

// Register registers the link routes.
func (h *LinkHandler) Register(e *echo.Echo) {
	e.POST("/api/link", h.Consume)
}

type linkRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type linkedTenant struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	TenantSlug string `json:"tenant_slug"`
}

// Consume verifies and burns a link token, then links the chat sender to
// every tenant the email's account belongs to.
func (h *LinkHandler) Consume(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Email) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token and email are required")
	}

	jti, platformName, workspaceID, sender, err := h.tokens.Verify(req.Token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired link token")
	}

	ctx := c.Request().Context()
	consumed, err := h.store.ConsumeLinkToken(ctx, jti)
	if err != nil {
		h.logger.Error("consume link token failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "link failed")
	}
	if !consumed {
		return echo.NewHTTPError(http.StatusGone, "link token expired or already used")
	}

	candidates, err := h.store.TenantsByEmail(ctx, req.Email)
	if err != nil {
		h.logger.Error("tenant lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "link failed")
	}
	if len(candidates) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no account found for that email")
	}

	linked := make([]linkedTenant, 0, len(candidates))
	for _, candidate := range candidates {
		mapping := identity.Mapping{
			Platform:    platformName,
			WorkspaceID: workspaceID,
			Sender:      sender,
			UserID:      candidate.UserID,
			Tenant:      candidate.Tenant,
		}
		if err := h.store.CreateMapping(ctx, mapping); err != nil {
			h.logger.Warn("mapping create failed",
				slog.String("tenant_slug", candidate.Tenant.TenantSlug),
				slog.Any("error", err),
			)
			continue
		}
		linked = append(linked, linkedTenant{
			TenantID:   candidate.Tenant.TenantID,
			TenantName: candidate.Tenant.TenantName,
			TenantSlug: candidate.Tenant.TenantSlug,
		})
	}
	if len(linked) == 0 {
		return echo.NewHTTPError(http.StatusInternalServerError, "link failed")
	}

	h.logger.Info("chat sender linked",
		slog.String("platform", platformName),
		slog.Int("tenants", len(linked)),
	)
	return c.JSON(http.StatusOK, map[string]any{
		"linked": linked,
	})
}
