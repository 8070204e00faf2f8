package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Role роль администратора портала
type Role string

const (
	RoleSuperAdmin      Role = "SUPER_ADMIN"
	RoleCampaignManager Role = "CAMPAIGN_MANAGER"
	RoleViewer          Role = "VIEWER"
)

// Valid проверяет, что роль известна
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleCampaignManager, RoleViewer:
		return true
	}
	return false
}

const (
	// ContextAdminKey ключ, под которым в gin.Context лежит Admin
	ContextAdminKey  = "admin"
	authHeaderPrefix = "Bearer "
)

// Admin аутентифицированный администратор
type Admin struct {
	ID    string
	Email string
	Role  Role
}

// TokenValidator проверяет токен и возвращает его claims
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims claims токена администратора
type TokenClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет bearer-токены админки
type AuthMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

// NewAuthMiddleware создает middleware авторизации
func NewAuthMiddleware(validator TokenValidator, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		log:       log,
		validator: validator,
	}
}

// RequireRole пропускает запрос, если токен валиден и его роль входит в roles.
// Без токена или с невалидным токеном - 401, с неподходящей ролью - 403.
func (m *AuthMiddleware) RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.reject(c, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}

		claims, err := m.validator.Validate(strings.TrimSpace(strings.TrimPrefix(authHeader, authHeaderPrefix)))
		if err != nil {
			m.reject(c, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		if claims.Subject == "" || !claims.Role.Valid() {
			m.reject(c, http.StatusUnauthorized, "Unauthorized", "token has no subject or unknown role")
			return
		}

		if !hasRole(claims.Role, roles) {
			m.reject(c, http.StatusForbidden, "Forbidden", fmt.Sprintf("role %s is not allowed", claims.Role))
			return
		}

		c.Set(ContextAdminKey, Admin{ID: claims.Subject, Email: claims.Email, Role: claims.Role})
		m.log.Debugw("Admin authenticated", "adminId", claims.Subject, "role", claims.Role)
		c.Next()
	}
}

// AdminFromContext возвращает администратора, сохраненного RequireRole
func AdminFromContext(c *gin.Context) (Admin, bool) {
	v, ok := c.Get(ContextAdminKey)
	if !ok {
		return Admin{}, false
	}
	admin, ok := v.(Admin)
	return admin, ok
}

func hasRole(role Role, allowed []Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func (m *AuthMiddleware) reject(c *gin.Context, status int, message, reason string) {
	m.log.Warnw("HTTP authorization failed", "path", c.Request.URL.Path, "status", status, "reason", reason)
	res.JsonResponse(c.Writer, res.ErrorResponse{Error: message}, status)
	c.Abort()
}

// HMACTokenValidator проверяет токены, подписанные HS256
type HMACTokenValidator struct {
	Secret []byte
}

func (v *HMACTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}

// SignToken выпускает HS256 токен администратора
func SignToken(secret []byte, admin Admin, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Email: admin.Email,
		Role:  admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
