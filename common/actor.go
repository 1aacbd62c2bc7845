package common

import (
	"github.com/gin-gonic/gin"

	"reviewhub/models"
)

const actorKey = "actor"

// SetActor stashes the authenticated user for the remainder of the request.
func SetActor(c *gin.Context, user *models.User) {
	c.Set(actorKey, user)
}

// Actor returns the authenticated user, or nil for anonymous requests.
// Handlers pass the result explicitly into business operations.
func Actor(c *gin.Context) *models.User {
	v, exists := c.Get(actorKey)
	if !exists {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}
