package middleware

import "github.com/gin-gonic/gin"

// GetUserID returns the user id RequireAuth stashed in the request context,
// or "" on an unauthenticated request.
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	return userID.(string)
}
