package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUser generates a uid when none is given", func(t *testing.T) {
		service := NewUserService(NewStubUserRepo())

		created, err := service.CreateUser(ctx, User{Username: "estimator", DisplayName: "Estimator"})

		require.NoError(t, err)
		assert.NotZero(t, created.Id)
		assert.NotEmpty(t, created.Uid)
	})

	t.Run("CreateUser keeps a caller-provided uid", func(t *testing.T) {
		service := NewUserService(NewStubUserRepo())

		created, err := service.CreateUser(ctx, User{Uid: "u-1", Username: "estimator"})

		require.NoError(t, err)
		assert.Equal(t, "u-1", created.Uid)
	})

	t.Run("GetUserByUid resolves the stored user", func(t *testing.T) {
		repo := NewStubUserRepo()
		service := NewUserService(repo)
		created, err := service.CreateUser(ctx, User{Uid: "u-1", Username: "estimator"})
		require.NoError(t, err)

		found, err := service.GetUserByUid(ctx, "u-1")

		require.NoError(t, err)
		assert.Equal(t, created.Id, found.Id)
	})

	t.Run("GetCurrentUser requires an acting user in the context", func(t *testing.T) {
		service := NewUserService(NewStubUserRepo())

		_, err := service.GetCurrentUser(ctx)

		require.ErrorIs(t, err, ErrNoUser)
	})

	t.Run("GetCurrentUser loads the user carried by the context", func(t *testing.T) {
		repo := NewStubUserRepo()
		service := NewUserService(repo)
		created, err := service.CreateUser(ctx, User{Uid: "u-1", Username: "estimator"})
		require.NoError(t, err)

		found, err := service.GetCurrentUser(WithUser(ctx, created))

		require.NoError(t, err)
		assert.Equal(t, "estimator", found.Username)
	})
}
