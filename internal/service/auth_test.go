package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/store"
)

func newAuthService(st *store.Memory) *AuthService {
	return NewAuthService(st, "test-secret", time.Hour, nopLogger())
}

func TestRegisterAndLogin(t *testing.T) {
	st := store.NewMemory()
	svc := newAuthService(st)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &model.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.NotZero(t, resp.UserID)
	require.NotEmpty(t, resp.Token)

	// Plaintext passwords are never stored.
	u, err := st.UserByID(ctx, resp.UserID)
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", u.PasswordHash)

	byName, err := svc.Login(ctx, &model.LoginRequest{Person: "alice", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, resp.UserID, byName.UserID)

	byEmail, err := svc.Login(ctx, &model.LoginRequest{Person: "alice@example.com", Password: "correct horse", IsEmail: true})
	require.NoError(t, err)
	require.Equal(t, resp.UserID, byEmail.UserID)
}

func TestLoginRejections(t *testing.T) {
	st := store.NewMemory()
	svc := newAuthService(st)
	ctx := context.Background()

	_, err := svc.Register(ctx, &model.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	// Wrong password and unknown account are indistinguishable.
	_, err = svc.Login(ctx, &model.LoginRequest{Person: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &model.LoginRequest{Person: "nobody", Password: "correct horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicate(t *testing.T) {
	st := store.NewMemory()
	svc := newAuthService(st)
	ctx := context.Background()

	req := &model.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw123456"}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)
	_, err = svc.Register(ctx, req)
	require.ErrorIs(t, err, store.ErrDuplicateUser)
}
