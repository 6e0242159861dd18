package auth

import (
	"context"
	"testing"
	"time"

	"github.com/capstan-io/capstan/internal/common"
	"github.com/capstan-io/capstan/pkg/config"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *common.Database {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&types.User{}, &types.AccessToken{})
	require.NoError(t, err)

	return &common.Database{DB: db}
}

func setupTestService(t *testing.T) (*Service, *common.Database) {
	db := setupTestDB(t)

	authConfig := &config.AuthConfig{
		JWTSecret:     "test-secret-key-for-testing-purposes",
		JWTExpiration: time.Hour,
		BCryptCost:    4, // Low cost for testing speed
	}

	service := NewService(db, nil, authConfig)
	return service, db
}

func TestRegister_Success(t *testing.T) {
	service, db := setupTestService(t)

	user, err := service.Register(context.Background(), &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.Password)
	assert.False(t, user.IsAdmin)

	var saved types.User
	require.NoError(t, db.Where("username = ?", "alice").First(&saved).Error)
	assert.NotEmpty(t, saved.Password)
	assert.NotEqual(t, "hunter2hunter2", saved.Password)
}

func TestRegister_Duplicate(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	_, err = service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "hunter2hunter2",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestLogin_Success(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	token, err := service.Login(ctx, &types.LoginRequest{
		Username: "alice",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, registered.ID, token.UserID)
	assert.True(t, token.ExpiresAt.After(time.Now()))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	_, err = service.Login(ctx, &types.LoginRequest{Username: "alice", Password: "wrong"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")

	_, err = service.Login(ctx, &types.LoginRequest{Username: "nobody", Password: "whatever"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestLogin_DisabledAccount(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&types.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	_, err = service.Login(ctx, &types.LoginRequest{Username: "alice", Password: "hunter2hunter2"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestValidateToken_RoundTrip(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	token, err := service.Login(ctx, &types.LoginRequest{Username: "alice", Password: "hunter2hunter2"})
	require.NoError(t, err)

	user, err := service.ValidateToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.Password)
}

func TestValidateToken_Invalid(t *testing.T) {
	service, _ := setupTestService(t)

	_, err := service.ValidateToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	token, value, err := service.CreateAccessToken(ctx, registered.ID, "ci")
	require.NoError(t, err)
	assert.NotEmpty(t, value)
	assert.Equal(t, "ci", token.Name)

	user, err := service.ValidateAccessToken(ctx, value)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	require.NoError(t, service.RevokeAccessToken(ctx, token.ID, registered.ID))

	_, err = service.ValidateAccessToken(ctx, value)
	assert.Error(t, err)
}

func TestRevokeAccessToken_WrongUser(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	token, _, err := service.CreateAccessToken(ctx, registered.ID, "ci")
	require.NoError(t, err)

	err = service.RevokeAccessToken(ctx, token.ID, uuid.New())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
