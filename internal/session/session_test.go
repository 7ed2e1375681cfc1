package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/invoicer/internal/account"
	"github.com/mmeshcher/invoicer/internal/model"
)

type stubResolver struct {
	user  *model.User
	err   error
	calls int
}

func (r *stubResolver) Current(ctx context.Context, token string) (*model.User, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.user, nil
}

func TestSessionLifecycle(t *testing.T) {
	r := &stubResolver{user: &model.User{ID: "u1", Email: "ada@example.com"}}
	s := New(r, "token")

	assert.Equal(t, StateUninitialized, s.State())
	_, err := s.OwnerID()
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 0, r.calls, "session must not resolve before Refresh")

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, StateAuthenticated, s.State())

	id, err := s.OwnerID()
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	u, ok := s.User()
	assert.True(t, ok)
	assert.Equal(t, "ada@example.com", u.Email)
}

func TestSessionAnonymous(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		resolver *stubResolver
		wantErr  bool
	}{
		{name: "no token", token: "", resolver: &stubResolver{}},
		{name: "rejected token", token: "t", resolver: &stubResolver{err: account.ErrNoSession}},
		{name: "resolver failure", token: "t", resolver: &stubResolver{err: errors.New("backend down")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.resolver, tt.token)
			err := s.Refresh(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, StateAnonymous, s.State())
			_, err = s.OwnerID()
			var authErr *AuthError
			assert.ErrorAs(t, err, &authErr)
		})
	}
}

func TestRefreshDropsRevokedSession(t *testing.T) {
	r := &stubResolver{user: &model.User{ID: "u1"}}
	s := New(r, "token")
	require.NoError(t, s.Refresh(context.Background()))

	r.err = account.ErrNoSession
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, StateAnonymous, s.State())
	_, ok := s.User()
	assert.False(t, ok)

	_, err := s.OwnerID()
	assert.ErrorIs(t, err, account.ErrNoSession)
}

func TestContext(t *testing.T) {
	s := New(&stubResolver{}, "x")
	got, ok := FromContext(WithSession(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "State(9)", State(9).String())
}
