package middleware

import (
	"errors"
	"strings"

	"ridematch/internal/models"
	"ridematch/internal/utils"
	"ridematch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims are the identity claims issued by the auth service.
type JWTClaims struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	VehicleType   string `json:"vehicle_type,omitempty"`
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	VehicleNumber string `json:"vehicle_number,omitempty"`
	jwt.RegisteredClaims
}

var errInvalidClaims = errors.New("invalid token claims")

// Principal converts the claims into the caller identity used by services.
func (c *JWTClaims) Principal() (models.Principal, error) {
	role := models.Role(strings.ToLower(c.Role))
	if strings.TrimSpace(c.UserID) == "" || !role.IsValid() {
		return models.Principal{}, errInvalidClaims
	}

	vehicleType, err := models.ParseVehicleType(c.VehicleType)
	if err != nil {
		return models.Principal{}, errInvalidClaims
	}

	return models.Principal{
		ID:          c.UserID,
		Role:        role,
		VehicleType: vehicleType,
		Name:        c.Name,
		Phone:       c.Phone,
		VehicleNo:   c.VehicleNumber,
	}, nil
}

// AuthRequired validates the bearer token and stores the principal in the
// request context. Browsers cannot set headers on a WebSocket handshake, so
// upgrade requests may pass the token as ?token= instead.
func AuthRequired(secret, issuer string) gin.HandlerFunc {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(options...)

	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		claims := &JWTClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		principal, err := claims.Principal()
		if err != nil {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		c.Set(utils.ContextPrincipal, principal)
		c.Set(utils.ContextUserID, principal.ID)
		c.Set(utils.ContextUserType, string(principal.Role))
		c.Set(utils.ContextVehicleType, string(principal.VehicleType))
		c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), principal.ID))

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return ""
		}
		return strings.TrimSpace(tokenString)
	}

	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("token")
	}
	return ""
}

// GetPrincipal returns the principal stored by AuthRequired.
func GetPrincipal(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(utils.ContextPrincipal)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}

// RoleRequired rejects callers whose role is not one of roles.
func RoleRequired(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}

		utils.ForbiddenResponse(c, string(roles[0])+" access required")
		c.Abort()
	}
}

func DriverRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleDriver)
}

func PassengerRequired() gin.HandlerFunc {
	return RoleRequired(models.RolePassenger)
}

// SystemRequired guards endpoints reserved for trusted collaborators.
func SystemRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleSystem)
}
