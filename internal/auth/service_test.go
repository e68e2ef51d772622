// internal/auth/service_test.go

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/linkup-backend/internal/common/utils"
)

// fakeRepo is an in-memory Repository for service tests
type fakeRepo struct {
	users  map[int64]*User
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[int64]*User)}
}

func (f *fakeRepo) CreateUser(_ context.Context, user *User) error {
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeRepo) GetUserByID(_ context.Context, id int64) (*User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeRepo) IsUsernameTaken(_ context.Context, username string) (bool, error) {
	for _, u := range f.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) IsEmailTaken(_ context.Context, email string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func newTestService(t *testing.T) Service {
	t.Helper()
	return NewService(newFakeRepo(), nil, &Config{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		BCryptCost:         4, // minimum cost keeps tests fast
	})
}

func signup(t *testing.T, svc Service) *AuthResponse {
	t.Helper()
	resp, err := svc.Signup(context.Background(), &SignupRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	return resp
}

func TestSignup(t *testing.T) {
	svc := newTestService(t)

	resp := signup(t, svc)
	assert.NotZero(t, resp.User.ID)
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	claims, err := utils.ValidateJWT(resp.AccessToken, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "access", claims.Type)
}

func TestSignupDuplicate(t *testing.T) {
	svc := newTestService(t)
	signup(t, svc)

	_, err := svc.Signup(context.Background(), &SignupRequest{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	_, err = svc.Signup(context.Background(), &SignupRequest{
		Username: "Alice", // usernames are case-insensitive
		Email:    "other@example.com",
		Password: "correct-horse",
	})
	assert.ErrorIs(t, err, ErrUsernameAlreadyExists)
}

func TestSignin(t *testing.T) {
	svc := newTestService(t)
	signup(t, svc)
	ctx := context.Background()

	resp, err := svc.Signin(ctx, &SigninRequest{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)

	_, err = svc.Signin(ctx, &SigninRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown accounts get the same error as bad passwords
	_, err = svc.Signin(ctx, &SigninRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken(t *testing.T) {
	svc := newTestService(t)
	resp := signup(t, svc)
	ctx := context.Background()

	refreshed, err := svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, refreshed.User.ID)
	assert.NotEmpty(t, refreshed.AccessToken)

	// An access token is not accepted as a refresh token
	_, err = svc.RefreshToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.RefreshToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken(t *testing.T) {
	svc := newTestService(t)
	resp := signup(t, svc)
	ctx := context.Background()

	claims, err := svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	_, err = svc.ValidateToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
