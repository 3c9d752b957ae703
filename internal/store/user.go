package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/isometry/ldapauth/internal/auth"
)

// User is the local account record for a directory user.
type User struct {
	ID uuid.UUID `gorm:"column:id;primaryKey;type:text" json:"id"`

	Email    string  `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	Username *string `gorm:"uniqueIndex" json:"username" validate:"omitempty,min=1,max=64"`

	FullName   string `json:"full_name" validate:"max=255"`
	FirstName  string `json:"first_name" validate:"max=255"`
	LastName   string `json:"last_name" validate:"max=255"`
	Phone      string `json:"phone" validate:"max=64"`
	Title      string `json:"title" validate:"max=255"`
	Department string `json:"department" validate:"max=255"`

	DN         string   `gorm:"column:dn" json:"dn"`
	Groups     []string `gorm:"serializer:json" json:"groups"`
	ObjectGUID string   `gorm:"column:object_guid;index" json:"object_guid"`
	ObjectSID  string   `gorm:"column:object_sid" json:"object_sid"`

	ResetPasswordToken  *string    `gorm:"uniqueIndex" json:"-"`
	ResetPasswordSentAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Password             string `gorm:"-" json:"-" validate:"max=1024"`
	PasswordConfirmation string `gorm:"-" json:"-" validate:"omitempty,eqfield=Password"`

	persisted bool
}

var _ auth.Record = (*User)(nil)

// SetPassword sets the transient password fields.
func (u *User) SetPassword(password, confirmation string) {
	u.Password = password
	u.PasswordConfirmation = confirmation
}

// ClearResetPasswordToken drops any pending reset token.
func (u *User) ClearResetPasswordToken() {
	u.ResetPasswordToken = nil
	u.ResetPasswordSentAt = nil
}

// IsNew reports whether u has not been written to the database yet.
func (u *User) IsNew() bool {
	return !u.persisted
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) AfterCreate(*gorm.DB) error {
	u.persisted = true
	return nil
}

func (u *User) AfterFind(*gorm.DB) error {
	u.persisted = true
	return nil
}
