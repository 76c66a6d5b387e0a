package service_test

import (
	"context"
	"testing"

	"github.com/2ao1-1/todo-backend/internal/repo/repotest"
	"github.com/2ao1-1/todo-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterAndLogin(t *testing.T) {
	svc := service.NewUserService(repotest.NewMemoryUserRepo())
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "Ada@Example.COM ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email, "email is normalized")
	assert.Equal(t, "Ada", u.Name)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")))

	// login works with any casing of the same address
	got, err := svc.ValidateCredentials(ctx, "ADA@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := service.NewUserService(repotest.NewMemoryUserRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other Ada", "ada@example.com", "different")
	assert.ErrorIs(t, err, service.ErrEmailTaken)
}

func TestValidateCredentialsRejections(t *testing.T) {
	svc := service.NewUserService(repotest.NewMemoryUserRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.ValidateCredentials(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = svc.ValidateCredentials(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = svc.ValidateCredentials(ctx, "", "")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestProfile(t *testing.T) {
	svc := service.NewUserService(repotest.NewMemoryUserRepo())
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)

	got, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	_, err = svc.Profile(ctx, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
