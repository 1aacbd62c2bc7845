package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"reviewhub/auth"
	"reviewhub/catalog"
	"reviewhub/common"
	"reviewhub/database"
	emailpkg "reviewhub/email"
	"reviewhub/reviews"
	"reviewhub/users"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using process environment")
	}

	db := common.ConnectDb()
	if db == nil {
		log.Fatal("Failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	})

	authModule := auth.NewAuthModule(db, emailpkg.NewEmailService())
	if err := authModule.BootstrapAdmin(); err != nil {
		log.Fatal("Failed to bootstrap admin:", err)
	}

	router.Use(authModule.LoadActor)

	authModule.RegisterRoutes(router)
	users.NewUserModule(db).RegisterRoutes(router)
	catalog.NewCatalogModule(db).RegisterRoutes(router)
	reviews.NewReviewModule(db).RegisterRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting server on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
