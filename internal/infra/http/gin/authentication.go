package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	domainuser "bazaar/internal/domain/user"
)

const principalContextKey = "bazaar.principal"

type principal struct {
	ID    string
	Email string
	Name  string
	Role  string
	Token string
}

func (p principal) IsAdmin() bool {
	return p.Role == string(domainuser.RoleAdmin)
}

// TokenVerifier resolves an opaque bearer token to a subject id. The realtime
// gateway handshake uses the same verifier, so both transports accept the
// same tokens.
type TokenVerifier interface {
	Verify(token string) (domainuser.ID, error)
}

// AuthMiddleware resolves the bearer token into a principal when present.
// Unauthenticated requests pass through; route handlers decide via
// requireAuth whether a principal is mandatory.
type AuthMiddleware struct {
	Verifier TokenVerifier
	Users    domainuser.Repository
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	userID, err := m.Verifier.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	p := principal{ID: string(userID), Token: token}
	if m.Users != nil {
		user, err := m.Users.ByID(c.Request.Context(), userID)
		switch {
		case err == nil:
			p.Email = user.Email
			p.Name = user.Name
			p.Role = string(user.Role)
		case !errors.Is(err, domainuser.ErrNotFound):
			if m.Logger != nil {
				m.Logger.Error("principal lookup failed", "error", err, "user_id", userID)
			}
			c.Next()
			return
		}
	}
	setPrincipal(c, p)
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireAuth(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
