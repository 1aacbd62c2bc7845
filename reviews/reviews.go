package reviews

import (
	"bytes"
	"database/sql"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"

	"reviewhub/common"
	"reviewhub/models"
	"reviewhub/perms"
)

type ReviewModule struct {
	db *gorm.DB
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // allow raw HTML passthrough in Markdown
	),
)

func NewReviewModule(db *gorm.DB) *ReviewModule {
	return &ReviewModule{db: db}
}

func (m *ReviewModule) RegisterRoutes(router *gin.Engine) {
	reviews := router.Group("/api/v1/titles/:titleID/reviews")
	{
		reviews.GET("", m.listReviews)
		reviews.POST("", m.createReview)
		reviews.GET("/:reviewID", m.getReview)
		reviews.PATCH("/:reviewID", m.updateReview)
		reviews.DELETE("/:reviewID", m.deleteReview)

		comments := reviews.Group("/:reviewID/comments")
		{
			comments.GET("", m.listComments)
			comments.POST("", m.createComment)
			comments.GET("/:commentID", m.getComment)
			comments.PATCH("/:commentID", m.updateComment)
			comments.DELETE("/:commentID", m.deleteComment)
		}
	}
}

// ComputeRating returns the mean review score for a title, or nil when the
// title has no reviews. Computed at read time, never maintained as a counter.
func ComputeRating(db *gorm.DB, titleID uint) *float64 {
	var avg sql.NullFloat64
	db.Model(&models.Review{}).Where("title_id = ?", titleID).
		Select("AVG(score)").Scan(&avg)
	if !avg.Valid {
		return nil
	}
	return &avg.Float64
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func reviewResponse(review *models.Review) gin.H {
	return gin.H{
		"id":       review.ID,
		"author":   review.Author.Username,
		"text":     review.Text,
		"html":     renderMarkdown(review.Text),
		"score":    review.Score,
		"pub_date": review.PubDate,
	}
}

func commentResponse(comment *models.Comment) gin.H {
	return gin.H{
		"id":       comment.ID,
		"author":   comment.Author.Username,
		"text":     comment.Text,
		"html":     renderMarkdown(comment.Text),
		"pub_date": comment.PubDate,
	}
}

func (m *ReviewModule) loadParentTitle(c *gin.Context) (*models.Title, bool) {
	id, err := strconv.Atoi(c.Param("titleID"))
	if err != nil {
		common.AbortWithError(c, common.Validation("invalid title id"))
		return nil, false
	}
	var title models.Title
	if err := m.db.First(&title, id).Error; err != nil {
		common.AbortWithError(c, common.NotFound("title not found"))
		return nil, false
	}
	return &title, true
}

func (m *ReviewModule) loadReview(c *gin.Context, title *models.Title) (*models.Review, bool) {
	id, err := strconv.Atoi(c.Param("reviewID"))
	if err != nil {
		common.AbortWithError(c, common.Validation("invalid review id"))
		return nil, false
	}
	var review models.Review
	if err := m.db.Preload("Author").
		Where("id = ? AND title_id = ?", id, title.ID).First(&review).Error; err != nil {
		common.AbortWithError(c, common.NotFound("review not found"))
		return nil, false
	}
	return &review, true
}

func (m *ReviewModule) listReviews(c *gin.Context) {
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}

	var reviews []models.Review
	if err := m.db.Preload("Author").Where("title_id = ?", title.ID).
		Order("pub_date DESC").Find(&reviews).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}

	out := make([]gin.H, len(reviews))
	for i := range reviews {
		out[i] = reviewResponse(&reviews[i])
	}
	c.JSON(http.StatusOK, out)
}

type createReviewRequest struct {
	Text  string `json:"text" binding:"required,max=500"`
	Score int    `json:"score" binding:"required,min=1,max=10"`
}

func (m *ReviewModule) createReview(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionCreate, perms.ResourceReview) {
		common.AbortWithError(c, common.Forbidden("authentication required"))
		return
	}

	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}

	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	var existing models.Review
	if err := m.db.Where("title_id = ? AND author_id = ?", title.ID, actor.ID).
		First(&existing).Error; err == nil {
		common.AbortWithError(c, common.Conflict("you already reviewed this title"))
		return
	}

	review := models.Review{
		TitleID:  title.ID,
		AuthorID: actor.ID,
		Text:     req.Text,
		Score:    req.Score,
	}
	// The unique index on (title_id, author_id) backs the check above, a
	// concurrent duplicate still comes back as a conflict.
	if err := m.db.Create(&review).Error; err != nil {
		common.AbortWithError(c, common.Conflict("you already reviewed this title"))
		return
	}
	review.Author = *actor

	c.JSON(http.StatusCreated, reviewResponse(&review))
}

func (m *ReviewModule) getReview(c *gin.Context) {
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, reviewResponse(review))
}

type updateReviewRequest struct {
	Text  *string `json:"text" binding:"omitempty,max=500"`
	Score *int    `json:"score" binding:"omitempty,min=1,max=10"`
}

func (m *ReviewModule) updateReview(c *gin.Context) {
	actor := common.Actor(c)
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}

	if !perms.AllowObject(actor, perms.ActionUpdate, perms.ResourceReview, review.AuthorID) {
		common.AbortWithError(c, common.Forbidden("not the author"))
		return
	}

	var req updateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	if req.Text != nil {
		review.Text = *req.Text
	}
	if req.Score != nil {
		review.Score = *req.Score
	}

	if err := m.db.Save(review).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResponse(review))
}

func (m *ReviewModule) deleteReview(c *gin.Context) {
	actor := common.Actor(c)
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}

	if !perms.AllowObject(actor, perms.ActionDelete, perms.ResourceReview, review.AuthorID) {
		common.AbortWithError(c, common.Forbidden("not the author"))
		return
	}

	// Comments go with their review, atomically.
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("review_id = ?", review.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(review).Error
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *ReviewModule) loadComment(c *gin.Context, review *models.Review) (*models.Comment, bool) {
	id, err := strconv.Atoi(c.Param("commentID"))
	if err != nil {
		common.AbortWithError(c, common.Validation("invalid comment id"))
		return nil, false
	}
	var comment models.Comment
	if err := m.db.Preload("Author").
		Where("id = ? AND review_id = ?", id, review.ID).First(&comment).Error; err != nil {
		common.AbortWithError(c, common.NotFound("comment not found"))
		return nil, false
	}
	return &comment, true
}

func (m *ReviewModule) listComments(c *gin.Context) {
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}

	var comments []models.Comment
	if err := m.db.Preload("Author").Where("review_id = ?", review.ID).
		Order("pub_date DESC").Find(&comments).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}

	out := make([]gin.H, len(comments))
	for i := range comments {
		out[i] = commentResponse(&comments[i])
	}
	c.JSON(http.StatusOK, out)
}

type commentRequest struct {
	Text string `json:"text" binding:"required,max=100"`
}

func (m *ReviewModule) createComment(c *gin.Context) {
	actor := common.Actor(c)
	if !perms.Allow(actor, perms.ActionCreate, perms.ResourceComment) {
		common.AbortWithError(c, common.Forbidden("authentication required"))
		return
	}

	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	comment := models.Comment{
		ReviewID: review.ID,
		AuthorID: actor.ID,
		Text:     req.Text,
	}
	if err := m.db.Create(&comment).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	comment.Author = *actor

	c.JSON(http.StatusCreated, commentResponse(&comment))
}

func (m *ReviewModule) getComment(c *gin.Context) {
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}
	comment, ok := m.loadComment(c, review)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, commentResponse(comment))
}

type updateCommentRequest struct {
	Text *string `json:"text" binding:"omitempty,max=100"`
}

func (m *ReviewModule) updateComment(c *gin.Context) {
	actor := common.Actor(c)
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}
	comment, ok := m.loadComment(c, review)
	if !ok {
		return
	}

	if !perms.AllowObject(actor, perms.ActionUpdate, perms.ResourceComment, comment.AuthorID) {
		common.AbortWithError(c, common.Forbidden("not the author"))
		return
	}

	var req updateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}
	if req.Text != nil {
		comment.Text = *req.Text
	}

	if err := m.db.Save(comment).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, commentResponse(comment))
}

func (m *ReviewModule) deleteComment(c *gin.Context) {
	actor := common.Actor(c)
	title, ok := m.loadParentTitle(c)
	if !ok {
		return
	}
	review, ok := m.loadReview(c, title)
	if !ok {
		return
	}
	comment, ok := m.loadComment(c, review)
	if !ok {
		return
	}

	if !perms.AllowObject(actor, perms.ActionDelete, perms.ResourceComment, comment.AuthorID) {
		common.AbortWithError(c, common.Forbidden("not the author"))
		return
	}

	if err := m.db.Delete(comment).Error; err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
