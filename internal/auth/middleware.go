package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// IdentityKey is the fiber locals key holding the validated Identity.
const IdentityKey = "identity"

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// TokenFromRequest looks for a token in the access_token query parameter, then
// token, then the Authorization header.
func TokenFromRequest(c *fiber.Ctx) string {
	if t := c.Query("access_token"); t != "" {
		return t
	}
	if t := c.Query("token"); t != "" {
		return t
	}
	t, err := ParseBearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return ""
	}
	return t
}

// Required rejects requests without a valid token and stores the Identity in
// locals for the next handler.
func Required(v Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		id, err := v.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

// IdentityFrom asserts a locals value stored under IdentityKey.
func IdentityFrom(v interface{}) (Identity, bool) {
	id, ok := v.(Identity)
	return id, ok
}
