package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/capstan-io/capstan/internal/common"
	"github.com/capstan-io/capstan/pkg/config"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/capstan-io/capstan/pkg/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service handles authentication operations
type Service struct {
	db     *common.Database
	cache  *common.Cache
	config *config.AuthConfig
}

// NewService creates a new authentication service
func NewService(db *common.Database, cache *common.Cache, config *config.AuthConfig) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		config: config,
	}
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req *types.RegisterRequest) (*types.User, error) {
	var existingUser types.User
	if err := s.db.Where("username = ? OR email = ?", req.Username, req.Email).First(&existingUser).Error; err == nil {
		return nil, fmt.Errorf("user with username or email already exists")
	}

	hashedPassword, err := utils.HashPassword(req.Password, s.config.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hashedPassword,
		IsActive: true,
		IsAdmin:  false,
	}

	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.Password = ""
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, req *types.LoginRequest) (*types.AuthToken, error) {
	var user types.User
	if err := s.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("user account is disabled")
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, fmt.Errorf("invalid credentials")
	}

	token, err := utils.GenerateJWT(user.ID, s.config.JWTSecret, s.config.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	authToken := &types.AuthToken{
		Token:     token,
		ExpiresAt: time.Now().Add(s.config.JWTExpiration),
		UserID:    user.ID,
	}

	if s.cache != nil {
		cacheKey := fmt.Sprintf("token:%s", user.ID.String())
		if err := s.cache.Set(ctx, cacheKey, authToken, s.config.JWTExpiration); err != nil {
			// Cache miss on the next request is the only consequence
			log.Warn().Err(err).Msg("failed to cache auth token")
		}
	}

	return authToken, nil
}

// ValidateToken validates a JWT token and returns the user
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*types.User, error) {
	userID, err := utils.ValidateJWT(tokenString, s.config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	cacheKey := fmt.Sprintf("user:%s", userID.String())
	var user types.User
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &user); err == nil {
			return &user, nil
		}
	}

	if err := s.db.Where("id = ? AND is_active = ?", userID, true).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Password = ""
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, &user, 10*time.Minute); err != nil {
			log.Warn().Err(err).Msg("failed to cache user")
		}
	}

	return &user, nil
}

// CreateAccessToken creates a new long-lived registry token for a user
func (s *Service) CreateAccessToken(ctx context.Context, userID uuid.UUID, name string) (*types.AccessToken, string, error) {
	tokenValue, err := utils.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	token := &types.AccessToken{
		UserID:    userID,
		Name:      name,
		TokenHash: utils.HashToken(tokenValue),
		IsActive:  true,
	}

	if err := s.db.Create(token).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create access token: %w", err)
	}

	if err := s.db.Preload("User").First(token, token.ID).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load access token: %w", err)
	}

	return token, tokenValue, nil
}

// ValidateAccessToken validates a registry token and returns the associated user
func (s *Service) ValidateAccessToken(ctx context.Context, tokenValue string) (*types.User, error) {
	tokenHash := utils.HashToken(tokenValue)

	var token types.AccessToken
	if err := s.db.Preload("User").Where("token_hash = ? AND is_active = ?", tokenHash, true).First(&token).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("invalid access token")
		}
		return nil, fmt.Errorf("failed to validate access token: %w", err)
	}

	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, fmt.Errorf("access token has expired")
	}

	if !token.User.IsActive {
		return nil, fmt.Errorf("user account is disabled")
	}

	now := time.Now()
	token.LastUsedAt = &now
	s.db.Save(&token)

	token.User.Password = ""
	return &token.User, nil
}

// RevokeAccessToken deactivates a registry token
func (s *Service) RevokeAccessToken(ctx context.Context, tokenID uuid.UUID, userID uuid.UUID) error {
	result := s.db.Model(&types.AccessToken{}).
		Where("id = ? AND user_id = ?", tokenID, userID).
		Update("is_active", false)

	if result.Error != nil {
		return fmt.Errorf("failed to revoke access token: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("access token not found")
	}

	return nil
}
