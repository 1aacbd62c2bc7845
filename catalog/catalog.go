package catalog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reviewhub/common"
	"reviewhub/models"
	"reviewhub/perms"
	"reviewhub/reviews"
)

type CatalogModule struct {
	db *gorm.DB
}

func NewCatalogModule(db *gorm.DB) *CatalogModule {
	return &CatalogModule{db: db}
}

func (m *CatalogModule) RegisterRoutes(router *gin.Engine) {
	categories := router.Group("/api/v1/categories")
	{
		categories.GET("", m.listCategories)
		categories.POST("", m.createCategory)
		categories.DELETE("/:slug", m.deleteCategory)
	}

	genres := router.Group("/api/v1/genres")
	{
		genres.GET("", m.listGenres)
		genres.POST("", m.createGenre)
		genres.DELETE("/:slug", m.deleteGenre)
	}

	titles := router.Group("/api/v1/titles")
	{
		titles.GET("", m.listTitles)
		titles.POST("", m.createTitle)
		titles.GET("/:titleID", m.getTitle)
		titles.PATCH("/:titleID", m.updateTitle)
		titles.DELETE("/:titleID", m.deleteTitle)
	}
}

type slugRequest struct {
	Name string `json:"name" binding:"required,max=250"`
	Slug string `json:"slug" binding:"required,max=50"`
}

func (m *CatalogModule) listCategories(c *gin.Context) {
	var categories []models.Category
	q := m.db.Order("slug DESC")
	if search := c.Query("search"); search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	if err := q.Find(&categories).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (m *CatalogModule) createCategory(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionCreate, perms.ResourceCategory) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var req slugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	var existing models.Category
	if err := m.db.Where("slug = ?", req.Slug).First(&existing).Error; err == nil {
		common.AbortWithError(c, common.Conflict("category slug already exists"))
		return
	}

	category := models.Category{Name: req.Name, Slug: req.Slug}
	if err := m.db.Create(&category).Error; err != nil {
		common.AbortWithError(c, common.Conflict("category slug already exists"))
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (m *CatalogModule) deleteCategory(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionDelete, perms.ResourceCategory) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var category models.Category
	if err := m.db.Where("slug = ?", c.Param("slug")).First(&category).Error; err != nil {
		common.AbortWithError(c, common.NotFound("category not found"))
		return
	}

	// Titles survive a category delete, they just lose the reference.
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Title{}).Where("category_id = ?", category.ID).
			Update("category_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *CatalogModule) listGenres(c *gin.Context) {
	var genres []models.Genre
	q := m.db.Order("slug DESC")
	if search := c.Query("search"); search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	if err := q.Find(&genres).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, genres)
}

func (m *CatalogModule) createGenre(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionCreate, perms.ResourceGenre) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var req slugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	var existing models.Genre
	if err := m.db.Where("slug = ?", req.Slug).First(&existing).Error; err == nil {
		common.AbortWithError(c, common.Conflict("genre slug already exists"))
		return
	}

	genre := models.Genre{Name: req.Name, Slug: req.Slug}
	if err := m.db.Create(&genre).Error; err != nil {
		common.AbortWithError(c, common.Conflict("genre slug already exists"))
		return
	}
	c.JSON(http.StatusCreated, genre)
}

func (m *CatalogModule) deleteGenre(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionDelete, perms.ResourceGenre) {
		common.AbortWithError(c, common.Forbidden("admin access required"))
		return
	}

	var genre models.Genre
	if err := m.db.Where("slug = ?", c.Param("slug")).First(&genre).Error; err != nil {
		common.AbortWithError(c, common.NotFound("genre not found"))
		return
	}

	// Only the association rows go, never the titles themselves.
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM title_genres WHERE genre_id = ?", genre.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&genre).Error
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *CatalogModule) titleResponse(title *models.Title) gin.H {
	genres := title.Genres
	if genres == nil {
		genres = []models.Genre{}
	}
	body := gin.H{
		"id":          title.ID,
		"name":        title.Name,
		"year":        title.Year,
		"description": title.Description,
		"genre":       genres,
		"category":    title.Category,
		"rating":      reviews.ComputeRating(m.db, title.ID),
	}
	return body
}

func (m *CatalogModule) listTitles(c *gin.Context) {
	q := m.db.Model(&models.Title{}).Preload("Category").Preload("Genres")

	if slug := c.Query("category"); slug != "" {
		q = q.Joins("JOIN categories ON categories.id = titles.category_id").
			Where("categories.slug = ?", slug)
	}
	if slug := c.Query("genre"); slug != "" {
		q = q.Joins("JOIN title_genres ON title_genres.title_id = titles.id").
			Joins("JOIN genres ON genres.id = title_genres.genre_id").
			Where("genres.slug = ?", slug)
	}
	if name := c.Query("name"); name != "" {
		q = q.Where("titles.name LIKE ?", "%"+name+"%")
	}
	if year := c.Query("year"); year != "" {
		q = q.Where("titles.year = ?", year)
	}

	var titles []models.Title
	if err := q.Order("titles.name DESC").Find(&titles).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}

	out := make([]gin.H, len(titles))
	for i := range titles {
		out[i] = m.titleResponse(&titles[i])
	}
	c.JSON(http.StatusOK, out)
}

type createTitleRequest struct {
	Name        string   `json:"name" binding:"required,max=200"`
	Year        int      `json:"year" binding:"required,gte=0"`
	Description string   `json:"description" binding:"max=256"`
	Category    string   `json:"category"`
	Genre       []string `json:"genre"`
}

func (m *CatalogModule) createTitle(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionCreate, perms.ResourceTitle) {
		common.AbortWithError(c, common.Forbidden("staff access required"))
		return
	}

	var req createTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}
	if req.Year > time.Now().Year() {
		common.AbortWithError(c, common.Validation("year cannot be in the future"))
		return
	}

	title := models.Title{
		Name:        req.Name,
		Year:        req.Year,
		Description: req.Description,
	}

	if req.Category != "" {
		var category models.Category
		if err := m.db.Where("slug = ?", req.Category).First(&category).Error; err != nil {
			common.AbortWithError(c, common.NotFound("category not found"))
			return
		}
		title.CategoryID = &category.ID
		title.Category = &category
	}

	genres, err := m.resolveGenres(req.Genre)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	title.Genres = genres

	if err := m.db.Create(&title).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m.titleResponse(&title))
}

func (m *CatalogModule) resolveGenres(slugs []string) ([]models.Genre, error) {
	genres := make([]models.Genre, 0, len(slugs))
	for _, slug := range slugs {
		var genre models.Genre
		if err := m.db.Where("slug = ?", slug).First(&genre).Error; err != nil {
			return nil, common.NotFound("genre not found: " + slug)
		}
		genres = append(genres, genre)
	}
	return genres, nil
}

func (m *CatalogModule) loadTitle(c *gin.Context) (*models.Title, bool) {
	id, err := strconv.Atoi(c.Param("titleID"))
	if err != nil {
		common.AbortWithError(c, common.Validation("invalid title id"))
		return nil, false
	}

	var title models.Title
	if err := m.db.Preload("Category").Preload("Genres").First(&title, id).Error; err != nil {
		common.AbortWithError(c, common.NotFound("title not found"))
		return nil, false
	}
	return &title, true
}

func (m *CatalogModule) getTitle(c *gin.Context) {
	title, ok := m.loadTitle(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.titleResponse(title))
}

type updateTitleRequest struct {
	Name        *string   `json:"name" binding:"omitempty,max=200"`
	Year        *int      `json:"year" binding:"omitempty,gte=0"`
	Description *string   `json:"description" binding:"omitempty,max=256"`
	Category    *string   `json:"category"`
	Genre       *[]string `json:"genre"`
}

func (m *CatalogModule) updateTitle(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionUpdate, perms.ResourceTitle) {
		common.AbortWithError(c, common.Forbidden("staff access required"))
		return
	}

	title, ok := m.loadTitle(c)
	if !ok {
		return
	}

	var req updateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	// Resolve every reference before touching the row, so a bad slug
	// leaves the title exactly as it was.
	if req.Name != nil {
		title.Name = *req.Name
	}
	if req.Year != nil {
		if *req.Year > time.Now().Year() {
			common.AbortWithError(c, common.Validation("year cannot be in the future"))
			return
		}
		title.Year = *req.Year
	}
	if req.Description != nil {
		title.Description = *req.Description
	}
	if req.Category != nil {
		if *req.Category == "" {
			title.CategoryID = nil
			title.Category = nil
		} else {
			var category models.Category
			if err := m.db.Where("slug = ?", *req.Category).First(&category).Error; err != nil {
				common.AbortWithError(c, common.NotFound("category not found"))
				return
			}
			title.CategoryID = &category.ID
			title.Category = &category
		}
	}

	var genres []models.Genre
	if req.Genre != nil {
		resolved, err := m.resolveGenres(*req.Genre)
		if err != nil {
			common.AbortWithError(c, err)
			return
		}
		genres = resolved
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(title).Error; err != nil {
			return err
		}
		if req.Genre != nil {
			return tx.Model(title).Association("Genres").Replace(genres)
		}
		return nil
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if req.Genre != nil {
		title.Genres = genres
	}

	c.JSON(http.StatusOK, m.titleResponse(title))
}

func (m *CatalogModule) deleteTitle(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionDelete, perms.ResourceTitle) {
		common.AbortWithError(c, common.Forbidden("staff access required"))
		return
	}

	title, ok := m.loadTitle(c)
	if !ok {
		return
	}

	// Reviews and their comments go with the title.
	err := m.db.Transaction(func(tx *gorm.DB) error {
		reviewIDs := tx.Model(&models.Review{}).Select("id").Where("title_id = ?", title.ID)
		if err := tx.Where("review_id IN (?)", reviewIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("title_id = ?", title.ID).Delete(&models.Review{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM title_genres WHERE title_id = ?", title.ID).Error; err != nil {
			return err
		}
		return tx.Delete(title).Error
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
