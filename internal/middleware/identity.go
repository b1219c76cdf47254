package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polyquery/polyquery/pkg/utils"
)

// UserIDKey is the gin context key holding the resolved *uint user ID.
const UserIDKey = "user_id"

// UserIDHeader is the optional caller identity header.
const UserIDHeader = "X-User-ID"

// Identity resolves the optional caller identity from the request header.
// A missing header leaves the caller anonymous; a malformed one is
// rejected outright.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := utils.ParseUserID(c.GetHeader(UserIDHeader))
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID header", err)
			c.Abort()
			return
		}
		if userID != nil {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// UserIDFrom extracts the resolved user ID from the gin context, nil for
// anonymous callers.
func UserIDFrom(c *gin.Context) *uint {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	userID, ok := v.(*uint)
	if !ok {
		return nil
	}
	return userID
}
