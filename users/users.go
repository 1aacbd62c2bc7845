package users

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reviewhub/common"
	"reviewhub/models"
	"reviewhub/perms"
)

type UserModule struct {
	db *gorm.DB
}

func NewUserModule(db *gorm.DB) *UserModule {
	return &UserModule{db: db}
}

func (u *UserModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/users")
	{
		group.GET("", u.listUsers)
		group.POST("", u.createUser)
		group.GET("/:username", u.getUser)
		group.PATCH("/:username", u.updateUser)
		group.DELETE("/:username", u.deleteUser)
	}
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"username":   user.Username,
		"email":      user.Email,
		"role":       user.Role,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"bio":        user.Bio,
	}
}

func (u *UserModule) listUsers(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionList, perms.ResourceUser) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var users []models.User
	if err := u.db.Order("username DESC").Find(&users).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}

	out := make([]gin.H, len(users))
	for i := range users {
		out[i] = userResponse(&users[i])
	}
	c.JSON(http.StatusOK, out)
}

type createUserRequest struct {
	Username  string `json:"username" binding:"required,max=150"`
	Email     string `json:"email" binding:"required,email,max=254"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name" binding:"max=150"`
	Bio       string `json:"bio"`
	Role      string `json:"role" binding:"omitempty,oneof=user moderator admin"`
}

func (u *UserModule) createUser(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionCreate, perms.ResourceUser) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}
	if req.Username == models.ReservedUsername {
		common.AbortWithError(c, common.Validation("username \"me\" is reserved"))
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	user := models.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Role:      req.Role,
	}
	if err := u.db.Create(&user).Error; err != nil {
		common.AbortWithError(c, common.Conflict("username or email already registered"))
		return
	}

	c.JSON(http.StatusCreated, userResponse(&user))
}

func (u *UserModule) getUser(c *gin.Context) {
	actor := common.Actor(c)
	username := c.Param("username")

	// "me" always resolves to the caller's own record.
	if username == models.ReservedUsername {
		if actor == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.JSON(http.StatusOK, userResponse(actor))
		return
	}

	if !perms.Allow(actor, perms.ActionRetrieve, perms.ResourceUser) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var user models.User
	if err := u.db.Where("username = ?", username).First(&user).Error; err != nil {
		common.AbortWithError(c, common.NotFound("user not found"))
		return
	}
	c.JSON(http.StatusOK, userResponse(&user))
}

type updateUserRequest struct {
	Username  *string `json:"username" binding:"omitempty,max=150"`
	Email     *string `json:"email" binding:"omitempty,email,max=254"`
	FirstName *string `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string `json:"last_name" binding:"omitempty,max=150"`
	Bio       *string `json:"bio"`
	Role      *string `json:"role" binding:"omitempty,oneof=user moderator admin"`
}

func (u *UserModule) updateUser(c *gin.Context) {
	actor := common.Actor(c)
	username := c.Param("username")

	if username == models.ReservedUsername {
		if actor == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		username = actor.Username
	} else if !perms.Allow(actor, perms.ActionUpdate, perms.ResourceUser) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	var user models.User
	if err := u.db.Where("username = ?", username).First(&user).Error; err != nil {
		common.AbortWithError(c, common.NotFound("user not found"))
		return
	}

	if req.Username != nil {
		if *req.Username == models.ReservedUsername {
			common.AbortWithError(c, common.Validation("username \"me\" is reserved"))
			return
		}
		user.Username = *req.Username
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.Role != nil {
		role := *req.Role
		// An unprivileged actor never escalates through the update path;
		// the submitted role is coerced back without error.
		if actor.Role == models.RoleUser && !actor.IsSuperuser {
			role = models.RoleUser
		}
		user.Role = role
	}

	if err := u.db.Save(&user).Error; err != nil {
		common.AbortWithError(c, common.Conflict("username or email already registered"))
		return
	}

	c.JSON(http.StatusOK, userResponse(&user))
}

func (u *UserModule) deleteUser(c *gin.Context) {
	actor := common.Actor(c)
	username := c.Param("username")

	// Deleting through the alias is never allowed, admins included.
	if username == models.ReservedUsername {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "cannot delete \"me\""})
		return
	}

	if !perms.Allow(actor, perms.ActionDelete, perms.ResourceUser) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var user models.User
	if err := u.db.Where("username = ?", username).First(&user).Error; err != nil {
		common.AbortWithError(c, common.NotFound("user not found"))
		return
	}

	// Authored reviews go, and with them their comments; comments the
	// user left elsewhere go too.
	err := u.db.Transaction(func(tx *gorm.DB) error {
		reviewIDs := tx.Model(&models.Review{}).Select("id").Where("author_id = ?", user.ID)
		if err := tx.Where("review_id IN (?)", reviewIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", user.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", user.ID).Delete(&models.Review{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
