package users

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"reviewhub/common"
	"reviewhub/models"
)

func setupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.AutoMigrate(&models.User{}, &models.Category{}, &models.Genre{},
		&models.Title{}, &models.Review{}, &models.Comment{})
	return db
}

func setupTestRouter(db *gorm.DB, actor *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if actor != nil {
		router.Use(func(c *gin.Context) {
			common.SetActor(c, actor)
			c.Next()
		})
	}
	NewUserModule(db).RegisterRoutes(router)
	return router
}

func createTestUser(db *gorm.DB, username, role string) *models.User {
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}
	db.Create(user)
	return user
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetMe(t *testing.T) {
	db := setupTestDB()
	alice := createTestUser(db, "alice", models.RoleUser)
	router := setupTestRouter(db, alice)

	w := doJSON(router, "GET", "/api/v1/users/me", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestGetMe_Anonymous(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)

	w := doJSON(router, "GET", "/api/v1/users/me", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOtherUser_PlainUserForbidden(t *testing.T) {
	db := setupTestDB()
	alice := createTestUser(db, "alice", models.RoleUser)
	createTestUser(db, "bob", models.RoleUser)
	router := setupTestRouter(db, alice)

	w := doJSON(router, "GET", "/api/v1/users/bob", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetOtherUser_Admin(t *testing.T) {
	db := setupTestDB()
	boss := createTestUser(db, "boss", models.RoleAdmin)
	createTestUser(db, "bob", models.RoleUser)
	router := setupTestRouter(db, boss)

	w := doJSON(router, "GET", "/api/v1/users/bob", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bob")
}

func TestListUsers_AdminOnly(t *testing.T) {
	db := setupTestDB()
	alice := createTestUser(db, "alice", models.RoleUser)

	w := doJSON(setupTestRouter(db, alice), "GET", "/api/v1/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	boss := createTestUser(db, "boss", models.RoleAdmin)
	w = doJSON(setupTestRouter(db, boss), "GET", "/api/v1/users", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleCoercion_PlainUserCannotEscalate(t *testing.T) {
	db := setupTestDB()
	alice := createTestUser(db, "alice", models.RoleUser)
	router := setupTestRouter(db, alice)

	w := doJSON(router, "PATCH", "/api/v1/users/me", gin.H{"role": "admin"})

	assert.Equal(t, http.StatusOK, w.Code)

	var saved models.User
	db.Where("username = ?", "alice").First(&saved)
	assert.Equal(t, models.RoleUser, saved.Role)
}

func TestRoleChange_SuperuserNotCoerced(t *testing.T) {
	db := setupTestDB()
	root := &models.User{
		Username:    "root",
		Email:       "root@example.com",
		Role:        models.RoleUser,
		IsSuperuser: true,
	}
	db.Create(root)
	router := setupTestRouter(db, root)

	// the superuser flag bypasses role checks even when the role field
	// still says "user"
	w := doJSON(router, "PATCH", "/api/v1/users/me", gin.H{"role": "admin"})

	assert.Equal(t, http.StatusOK, w.Code)

	var saved models.User
	db.Where("username = ?", "root").First(&saved)
	assert.Equal(t, models.RoleAdmin, saved.Role)
}

func TestRoleChange_AdminCanPromote(t *testing.T) {
	db := setupTestDB()
	boss := createTestUser(db, "boss", models.RoleAdmin)
	createTestUser(db, "bob", models.RoleUser)
	router := setupTestRouter(db, boss)

	w := doJSON(router, "PATCH", "/api/v1/users/bob", gin.H{"role": "moderator"})

	assert.Equal(t, http.StatusOK, w.Code)

	var saved models.User
	db.Where("username = ?", "bob").First(&saved)
	assert.Equal(t, models.RoleModerator, saved.Role)
}

func TestPatchMe_UpdatesProfile(t *testing.T) {
	db := setupTestDB()
	alice := createTestUser(db, "alice", models.RoleUser)
	router := setupTestRouter(db, alice)

	w := doJSON(router, "PATCH", "/api/v1/users/me", gin.H{
		"first_name": "Alice",
		"bio":        "reads a lot",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var saved models.User
	db.Where("username = ?", "alice").First(&saved)
	assert.Equal(t, "Alice", saved.FirstName)
	assert.Equal(t, "reads a lot", saved.Bio)
}

func TestDeleteMe_MethodNotAllowed(t *testing.T) {
	db := setupTestDB()
	boss := createTestUser(db, "boss", models.RoleAdmin)
	router := setupTestRouter(db, boss)

	// rejected even for an admin acting on themselves through the alias
	w := doJSON(router, "DELETE", "/api/v1/users/me", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDeleteUser_AdminOnly(t *testing.T) {
	db := setupTestDB()
	alice := createTestUser(db, "alice", models.RoleUser)
	createTestUser(db, "bob", models.RoleUser)
	router := setupTestRouter(db, alice)

	w := doJSON(router, "DELETE", "/api/v1/users/bob", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteUser_CascadesReviewsAndComments(t *testing.T) {
	db := setupTestDB()
	boss := createTestUser(db, "boss", models.RoleAdmin)
	bob := createTestUser(db, "bob", models.RoleUser)
	carol := createTestUser(db, "carol", models.RoleUser)

	title := models.Title{Name: "X", Year: 2020}
	db.Create(&title)

	review := models.Review{TitleID: title.ID, AuthorID: bob.ID, Text: "good", Score: 8}
	db.Create(&review)

	// carol comments on bob's review; bob comments elsewhere
	db.Create(&models.Comment{ReviewID: review.ID, AuthorID: carol.ID, Text: "agreed"})

	carolReview := models.Review{TitleID: title.ID, AuthorID: carol.ID, Text: "meh", Score: 4}
	db.Create(&carolReview)
	db.Create(&models.Comment{ReviewID: carolReview.ID, AuthorID: bob.ID, Text: "why"})

	router := setupTestRouter(db, boss)
	w := doJSON(router, "DELETE", "/api/v1/users/bob", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var reviewCount, commentCount int64
	db.Model(&models.Review{}).Count(&reviewCount)
	db.Model(&models.Comment{}).Count(&commentCount)

	// carol's review survives; both of bob's traces are gone, including
	// carol's comment on bob's deleted review
	assert.Equal(t, int64(1), reviewCount)
	assert.Equal(t, int64(0), commentCount)
}

func TestCreateUser_AdminSetsRole(t *testing.T) {
	db := setupTestDB()
	boss := createTestUser(db, "boss", models.RoleAdmin)
	router := setupTestRouter(db, boss)

	w := doJSON(router, "POST", "/api/v1/users", gin.H{
		"username": "mod",
		"email":    "mod@example.com",
		"role":     "moderator",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var saved models.User
	db.Where("username = ?", "mod").First(&saved)
	assert.Equal(t, models.RoleModerator, saved.Role)
}

func TestCreateUser_ReservedUsername(t *testing.T) {
	db := setupTestDB()
	boss := createTestUser(db, "boss", models.RoleAdmin)
	router := setupTestRouter(db, boss)

	w := doJSON(router, "POST", "/api/v1/users", gin.H{
		"username": "me",
		"email":    "me@example.com",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
