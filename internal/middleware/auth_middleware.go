package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"partner-service/internal/models"
)

// Claims are the token claims this service understands. Tokens are issued
// by the identity provider; we only verify and read them.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
	issuer string
}

func NewAuthMiddleware(secret, issuer string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// AuthRequired middleware that requires a valid JWT token
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token required",
				"code":  "MISSING_TOKEN",
			})
			c.Abort()
			return
		}

		claims, err := m.validateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		accountID, err := uuid.Parse(claims.AccountID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid account ID in token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set("account_id", accountID)
		c.Set("account_email", claims.Email)
		c.Set("account_name", claims.Name)
		c.Set("account_role", claims.Role)

		c.Next()
	}
}

// RequireAnyRole middleware that requires any of the specified roles
func (m *AuthMiddleware) RequireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.AuthRequired()(c)
		if c.IsAborted() {
			return
		}

		role := c.GetString("account_role")
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":    "Insufficient role",
			"code":     "INSUFFICIENT_ROLE",
			"required": roles,
		})
		c.Abort()
	}
}

// AdminOnly middleware that requires the admin role
func (m *AuthMiddleware) AdminOnly() gin.HandlerFunc {
	return m.RequireAnyRole(models.RoleAdmin)
}

// PartnerOrAdmin middleware for partner-facing management endpoints
func (m *AuthMiddleware) PartnerOrAdmin() gin.HandlerFunc {
	return m.RequireAnyRole(models.RolePartner, models.RoleAdmin)
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// extractToken extracts the JWT token from the Authorization header
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

// GetAccountID utility function to get the caller's account ID from context
func GetAccountID(c *gin.Context) (uuid.UUID, error) {
	accountID, exists := c.Get("account_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("account ID not found in context")
	}

	accountUUID, ok := accountID.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid account ID format")
	}

	return accountUUID, nil
}

// GetAccountName utility function to get the caller's display name from context
func GetAccountName(c *gin.Context) string {
	return c.GetString("account_name")
}

// GetAccountRole utility function to get the caller's role from context
func GetAccountRole(c *gin.Context) string {
	return c.GetString("account_role")
}
