package middlewares

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

const sessionUserTTL = 15 * time.Minute

// AuthMiddleware validates the bearer token and resolves the session user,
// preferring the redis cache over a DB lookup. On success the request
// context carries the business id, user id and username; requests without
// an Authorization header pass through unauthenticated and are rejected by
// the handlers that need an owner.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		validate, err := utils.JwtValidate(auth[len(bearer):])
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		user, err := sessionUser(c, claims.ID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), user.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUsernameInContext(ctx, user.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func sessionUser(c *gin.Context, userId int) (*models.User, error) {
	key := fmt.Sprintf("User:%d", userId)

	var user models.User
	exists, err := config.GetRedisObject(key, &user)
	if err == nil && exists {
		return &user, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := db.WithContext(c.Request.Context()).Take(&user, userId).Error; err != nil {
		return nil, err
	}

	// Cache miss fill is best effort.
	_ = config.SetRedisObject(key, &user, sessionUserTTL)
	return &user, nil
}

// RequireAdmin rejects requests whose session user is not an admin.
func RequireAdmin(ctx context.Context) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return fmt.Errorf("unauthorized")
	}

	key := fmt.Sprintf("User:%d", userId)
	var user models.User
	exists, err := config.GetRedisObject(key, &user)
	if err != nil || !exists {
		db := config.GetDB()
		if db == nil {
			return fmt.Errorf("db is nil")
		}
		if err := db.WithContext(ctx).Take(&user, userId).Error; err != nil {
			return fmt.Errorf("unauthorized")
		}
	}
	if user.Role != models.UserRoleAdmin {
		return fmt.Errorf("unauthorized")
	}
	return nil
}
