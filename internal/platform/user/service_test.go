package user_test

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitzy/expense-service/internal/platform/user"
	"github.com/splitzy/expense-service/pkg/logger"
)

type memRepo struct {
	byID    map[uuid.UUID]*user.User
	byEmail map[string]*user.User
}

func newMemRepo() *memRepo {
	return &memRepo{
		byID:    make(map[uuid.UUID]*user.User),
		byEmail: make(map[string]*user.User),
	}
}

func (r *memRepo) Create(_ context.Context, u *user.User) error {
	if _, ok := r.byEmail[u.Email]; ok {
		return user.ErrUserAlreadyExists
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, u *user.User) error {
	if _, ok := r.byID[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = &cp
	return nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	u, ok := r.byID[id]
	if !ok {
		return user.ErrUserNotFound
	}
	delete(r.byEmail, u.Email)
	delete(r.byID, id)
	return nil
}

func (r *memRepo) Exists(_ context.Context, email string) (bool, error) {
	_, ok := r.byEmail[email]
	return ok, nil
}

func newUserService() (*user.Service, *memRepo) {
	repo := newMemRepo()
	return user.NewService(repo, logger.New("test", io.Discard)), repo
}

func TestRegister(t *testing.T) {
	svc, _ := newUserService()

	u, err := svc.Register(context.Background(), "asha@example.com", "Asha", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.Equal(t, "Asha", u.Name)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "correct horse battery", u.PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "Asha", "longenoughpassword")
	assert.ErrorIs(t, err, user.ErrInvalidEmail)

	_, err = svc.Register(ctx, "asha@example.com", "", "longenoughpassword")
	assert.ErrorIs(t, err, user.ErrInvalidName)

	_, err = svc.Register(ctx, "asha@example.com", "Asha", "short")
	assert.ErrorIs(t, err, user.ErrPasswordTooShort)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "asha@example.com", "Asha", "longenoughpassword")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "asha@example.com", "Other Asha", "longenoughpassword")
	assert.ErrorIs(t, err, user.ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	svc, _ := newUserService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "asha@example.com", "Asha", "longenoughpassword")
	require.NoError(t, err)

	u, err := svc.Login(ctx, "asha@example.com", "longenoughpassword")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	assert.NotNil(t, u.LastLoginAt)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "asha@example.com", "Asha", "longenoughpassword")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "asha@example.com", "not the password")
	assert.ErrorIs(t, err, user.ErrInvalidPassword)
}

func TestLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	svc, _ := newUserService()

	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever123")
	assert.ErrorIs(t, err, user.ErrInvalidPassword)
}
