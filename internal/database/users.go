package database

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserStore accesses the users collection
type UserStore struct {
	db *gorm.DB
}

// EnsureAdmin seeds the default admin account on first start. An existing
// account with the same username is left untouched.
func (s *UserStore) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).Count(&count).Error
	if err != nil {
		return apperrors.PersistenceError("failed to check admin account", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to hash admin password")
	}

	user := models.User{
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      true,
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return apperrors.PersistenceError("failed to seed admin account", err)
	}
	return nil
}

// Authenticate checks a username/password pair
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("user", username)
	}
	if err != nil {
		return nil, apperrors.PersistenceError("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid credentials")
	}
	return &user, nil
}
