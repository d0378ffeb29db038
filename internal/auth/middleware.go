package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/picto-request-service/internal/domain"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and stores the caller as a
// domain.Actor.
type AuthMiddleware struct {
	tokens          *TokenManager
	handlers        map[string]struct{}
	privilegedRoles map[string]struct{}
}

// NewAuthMiddleware constructs middleware. Logins listed in handlers and
// tokens carrying one of privilegedRoles act as request handlers.
func NewAuthMiddleware(tokens *TokenManager, handlers, privilegedRoles []string) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:          tokens,
		handlers:        toSet(handlers, false),
		privilegedRoles: toSet(privilegedRoles, true),
	}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(actorKey, m.actorFor(claims))
	return c.Next()
}

func (m *AuthMiddleware) actorFor(claims *Claims) domain.Actor {
	login := claims.Login()
	_, handler := m.handlers[login]
	_, role := m.privilegedRoles[strings.ToLower(claims.Role)]
	return domain.Actor{
		Login:       login,
		DisplayName: claims.Name,
		Privileged:  handler || role,
	}
}

// bearerToken reads the Authorization header. EventSource clients cannot set
// headers, so the event stream also accepts an access_token query parameter.
func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" && c.Method() == fiber.MethodGet {
			return token, nil
		}
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return parts[1], nil
}

// ActorFromContext retrieves the authenticated caller.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return domain.Actor{}, false
	}
	actor, ok := val.(domain.Actor)
	return actor, ok
}

func toSet(values []string, lower bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
