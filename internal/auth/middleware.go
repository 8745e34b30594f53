package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by RequireAuth
const (
	OperatorIDKey = "operator_id"
	EmailKey      = "email"
	RolesKey      = "roles"
	ClaimsKey     = "claims"
)

// RequireAuth is a Gin middleware that validates JWT tokens. Browsers cannot
// set headers on a websocket upgrade, so a token query parameter is accepted
// for upgrade requests only.
func RequireAuth(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth")
		defer span.End()

		token, ok := bearerToken(c)
		if !ok {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "Missing or invalid authorization header",
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			slog.Warn("invalid token", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "Invalid or expired token",
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("operator.id", claims.OperatorID),
		)

		c.Set(OperatorIDKey, claims.OperatorID)
		c.Set(EmailKey, claims.Email)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		slog.Debug("operator authenticated",
			"operator_id", claims.OperatorID,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.Next()
	}
}

// RequireRole is a Gin middleware that checks the authenticated operator's roles
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role")
		defer span.End()
		span.SetAttributes(attribute.String("required.role", role))

		roles, _ := c.Get(RolesKey)
		list, _ := roles.([]string)
		for _, r := range list {
			if r == role {
				span.SetAttributes(attribute.Bool("auth.role_authorized", true))
				c.Next()
				return
			}
		}

		operatorID, _ := c.Get(OperatorIDKey)
		span.SetAttributes(attribute.Bool("auth.role_authorized", false))
		slog.Warn("insufficient permissions", "operator_id", operatorID, "required_role", role)
		c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
			Error: "Insufficient permissions",
			Code:  models.ErrCodeForbidden,
		})
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, prefix) {
			return "", false
		}
		token := strings.TrimSpace(header[len(prefix):])
		return token, token != ""
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}
