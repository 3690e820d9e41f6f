package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrEmailTaken = errors.New("email already used")

// Operator is an account allowed to issue commands to the device.
type Operator struct {
	ID           uint64    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Admin        bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
}

// CreateOperator stores a new operator. The first operator on a fresh device
// becomes the admin. The idx_operators_single_admin index allows one admin
// row, so of two concurrent first registrations one is stored as a plain
// operator.
func CreateOperator(ctx context.Context, db *gorm.DB, email, passwordHash string) (Operator, error) {
	var op Operator
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&Operator{}).Where("admin = ?", true).Count(&admins).Error; err != nil {
			return err
		}
		op = Operator{Email: email, PasswordHash: passwordHash, Admin: admins == 0}
		return tx.Create(&op).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && op.Admin {
		// lost the admin slot, or the email is taken; the retry tells which
		op = Operator{Email: email, PasswordHash: passwordHash}
		err = db.WithContext(ctx).Create(&op).Error
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Operator{}, ErrEmailTaken
	}
	if err != nil {
		return Operator{}, err
	}
	return op, nil
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ComparePassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
