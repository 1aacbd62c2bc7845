package auth

import (
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"reviewhub/models"
)

// BootstrapAdmin creates a superuser from ADMIN_USERNAME / ADMIN_EMAIL on
// first start, logging its confirmation code once. Without this there is
// no way to mint the first admin credential.
func (a *AuthModule) BootstrapAdmin() error {
	username := os.Getenv("ADMIN_USERNAME")
	email := os.Getenv("ADMIN_EMAIL")
	if username == "" || email == "" {
		return nil
	}

	var existing models.User
	if err := a.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:         username,
		Email:            email,
		Role:             models.RoleAdmin,
		IsSuperuser:      true,
		ConfirmationHash: string(hash),
	}
	if err := a.db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Bootstrapped admin %q, confirmation code: %s", username, code)
	return nil
}
