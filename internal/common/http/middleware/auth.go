package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"
)

const tokenQueryParam = "token"

// TokenVerifier turns a raw credential into a verified user id.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (string, error)
}

// AuthMiddleware rejects requests without a valid token and records the
// verified user id for downstream handlers.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("auth service unavailable"))
			return
		}
		token := ExtractToken(c)
		if token == "" {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("missing token"))
			return
		}
		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		SetUserID(c, userID)
		c.Next()
	}
}

// ExtractToken reads a bearer token from the Authorization header, falling
// back to the token query parameter used by browser websocket clients.
func ExtractToken(c *gin.Context) string {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query(tokenQueryParam))
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
