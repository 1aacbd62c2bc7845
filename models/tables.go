package models

import "time"

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// ReservedUsername cannot be registered; it is the alias every user
// addresses their own record through.
const ReservedUsername = "me"

type User struct {
	ID               uint   `gorm:"primary_key;autoIncrement" json:"id"`
	Username         string `gorm:"size:150;unique;not null;index" json:"username"`
	Email            string `gorm:"size:254;unique;not null" json:"email"`
	FirstName        string `gorm:"size:150" json:"first_name"`
	LastName         string `gorm:"size:150" json:"last_name"`
	Bio              string `gorm:"type:text" json:"bio"`
	Role             string `gorm:"size:40;not null;default:'user'" json:"role"`
	IsSuperuser      bool   `gorm:"default:false" json:"-"`
	ConfirmationHash string `json:"-"` // bcrypt of the emailed code
}

// IsStaff reports whether the user holds catalog-administration privileges.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.IsSuperuser
}

// IsModeratorOrAbove reports whether the user may mutate content authored
// by others.
func (u *User) IsModeratorOrAbove() bool {
	return u.Role == RoleAdmin || u.Role == RoleModerator || u.IsSuperuser
}

type Category struct {
	ID   uint   `gorm:"primary_key;autoIncrement" json:"-"`
	Name string `gorm:"size:250;not null" json:"name"`
	Slug string `gorm:"size:50;unique;not null;index" json:"slug"`
}

type Genre struct {
	ID   uint   `gorm:"primary_key;autoIncrement" json:"-"`
	Name string `gorm:"size:250;not null" json:"name"`
	Slug string `gorm:"size:50;unique;not null;index" json:"slug"`
}

type Title struct {
	ID          uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Name        string    `gorm:"size:200;not null;index" json:"name"`
	Year        int       `gorm:"index" json:"year"`
	Description string    `gorm:"size:256" json:"description"`
	CategoryID  *uint     `gorm:"index" json:"-"`
	Category    *Category `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Genres      []Genre   `gorm:"many2many:title_genres;constraint:OnDelete:CASCADE" json:"genre"`
}

type Review struct {
	ID       uint      `gorm:"primary_key;autoIncrement" json:"id"`
	TitleID  uint      `gorm:"not null;uniqueIndex:idx_one_review_per_author" json:"-"`
	AuthorID uint      `gorm:"not null;uniqueIndex:idx_one_review_per_author" json:"-"`
	Author   User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Text     string    `gorm:"size:500;not null" json:"text"`
	Score    int       `gorm:"not null" json:"score"`
	PubDate  time.Time `gorm:"autoUpdateTime;index" json:"pub_date"`
}

type Comment struct {
	ID       uint      `gorm:"primary_key;autoIncrement" json:"id"`
	ReviewID uint      `gorm:"not null;index" json:"-"`
	Review   Review    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID uint      `gorm:"not null;index" json:"-"`
	Author   User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Text     string    `gorm:"size:100;not null" json:"text"`
	PubDate  time.Time `gorm:"autoUpdateTime;index" json:"pub_date"`
}
