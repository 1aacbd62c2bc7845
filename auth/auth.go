package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"reviewhub/common"
	emailpkg "reviewhub/email"
	"reviewhub/models"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type AuthModule struct {
	db    *gorm.DB
	email *emailpkg.EmailService
}

func NewAuthModule(db *gorm.DB, email *emailpkg.EmailService) *AuthModule {
	return &AuthModule{db: db, email: email}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/auth")
	{
		group.POST("/signup", a.signupPost)
		group.POST("/token", a.tokenPost)
	}
}

type claims struct {
	UserID    uint   `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type signupRequest struct {
	Username string `json:"username" binding:"required,max=150"`
	Email    string `json:"email" binding:"required,email,max=254"`
}

func (a *AuthModule) signupPost(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	user, code, err := a.Signup(req.Username, req.Email)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	body := gin.H{"username": user.Username, "email": user.Email}

	// Delivery is best effort: the user record stays either way, the
	// caller just learns that the mail bounced.
	if mailErr := a.email.SendConfirmationCode(user.Email, code); mailErr != nil {
		log.Printf("Error sending confirmation code to %s: %v", user.Email, mailErr)
		body["email_error"] = "could not deliver confirmation code, contact support"
	}

	c.JSON(http.StatusOK, body)
}

// Signup registers a new user with role=user and returns the plaintext
// confirmation code exactly once; only its bcrypt hash is persisted.
func (a *AuthModule) Signup(username, email string) (*models.User, string, error) {
	if username == models.ReservedUsername {
		return nil, "", common.Validation("username \"me\" is reserved")
	}

	var existing models.User
	if err := a.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil, "", common.Conflict("username already registered")
	}
	if err := a.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, "", common.Conflict("email already registered")
	}

	code, err := generateCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	user := models.User{
		Username:         username,
		Email:            email,
		Role:             models.RoleUser,
		ConfirmationHash: string(hash),
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, "", common.Conflict("user already registered")
	}

	return &user, code, nil
}

type tokenRequest struct {
	Username         string `json:"username" binding:"required"`
	ConfirmationCode string `json:"confirmation_code" binding:"required"`
}

func (a *AuthModule) tokenPost(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BindError(err))
		return
	}

	access, refresh, err := a.ExchangeCode(req.Username, req.ConfirmationCode)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh})
}

// ExchangeCode trades a confirmation code for a token pair. The code is
// not invalidated on success, so the exchange can be repeated.
func (a *AuthModule) ExchangeCode(username, code string) (access, refresh string, err error) {
	var user models.User
	if dbErr := a.db.Where("username = ?", username).First(&user).Error; dbErr != nil {
		return "", "", common.NotFound("user not found")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.ConfirmationHash), []byte(code)) != nil {
		return "", "", common.InvalidCredential("confirmation code mismatch")
	}

	return MintTokenPair(&user)
}

// MintTokenPair issues a short-lived access token and a longer-lived
// refresh token for the user.
func MintTokenPair(user *models.User) (access, refresh string, err error) {
	now := time.Now()

	access, err = signToken(user, "access", now, accessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = signToken(user, "refresh", now, refreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func signToken(user *models.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:    user.ID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(jwtSecret())
}

func jwtSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// LoadActor resolves the Authorization header into the request actor.
// Anonymous requests pass through; a present but invalid bearer token is
// rejected so a caller never silently degrades to anonymous.
func (a *AuthModule) LoadActor(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.Next()
		return
	}

	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
		return
	}

	parsed := &claims{}
	token, err := jwt.ParseWithClaims(raw, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret(), nil
	})
	if err != nil || !token.Valid || parsed.TokenType != "access" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	// Role and superuser flag are read fresh, a stale token never
	// carries old privileges forward.
	var user models.User
	if err := a.db.First(&user, parsed.UserID).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
		return
	}

	common.SetActor(c, &user)
	c.Next()
}

func generateCode() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
