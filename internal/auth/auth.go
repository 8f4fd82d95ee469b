package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const userContextKey = "user"

type Authenticator struct {
	secret      []byte
	userService services.UserServiceDB
}

func NewAuthenticator(secret string, userService services.UserServiceDB) *Authenticator {
	return &Authenticator{secret: []byte(secret), userService: userService}
}

func SetupRoutes(r *gin.Engine, a *Authenticator) {
	auth := r.Group("/auth")
	{
		auth.GET("/user", a.Middleware(), getUser)
	}
}

// Middleware verifies the bearer token, upserts the user and stores it on
// the gin context. WebSocket upgrades pass the token as ?token=.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
				c.Abort()
				return
			}
			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
				c.Abort()
				return
			}
			token = bearerToken[1]
		}

		claims, err := a.verifyToken(token)
		if err != nil {
			log.Debug().Err(err).Msg("Token rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		profile := services.UserProfile{}
		profile.ExternalID, _ = claims["sub"].(string)
		profile.Email, _ = claims["email"].(string)
		profile.Name, _ = claims["name"].(string)
		profile.Locale, _ = claims["locale"].(string)
		profile.Country, _ = claims["country"].(string)
		profile.Timezone, _ = claims["zoneinfo"].(string)
		if profile.ExternalID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			c.Abort()
			return
		}

		user, err := a.userService.CreateOrUpdateUser(c.Request.Context(), profile)
		if err != nil {
			log.Error().Err(err).Str("sub", profile.ExternalID).Msg("Failed to upsert user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process user information"})
			c.Abort()
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Middleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func getUser(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *Authenticator) verifyToken(tokenString string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token is required")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
