package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const participantKey = "participant_id"

// JWTMiddleware validates bearer tokens and stores participant_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := parseClaims(token, secretBytes)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(participantKey, claims.ParticipantID)
		return c.Next()
	}
}

// AdminMiddleware accepts requests whose bearer token equals token.
func AdminMiddleware(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		got := bearerFromHeader(c.Get("Authorization"))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "admin token required")
		}
		return c.Next()
	}
}

// ParticipantID returns the id stored by JWTMiddleware, or "".
func ParticipantID(c *fiber.Ctx) string {
	id, _ := c.Locals(participantKey).(string)
	return id
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
