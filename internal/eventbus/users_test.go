package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-sync/internal/aws/awstest"
	"github.com/imrishuroy/go-storefront-sync/internal/users"
)

func newUserStore() (*users.Store, *awstest.FakeDynamo) {
	fake := awstest.NewFakeDynamo(map[string]string{"users": "user_id"})
	return users.NewStore(fake, "users"), fake
}

func userEvent(name string, data interface{}) Event {
	raw, _ := json.Marshal(data)
	return Event{ID: "evt-1", Name: name, Data: raw}
}

func TestUserFromClerk(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want users.User
	}{
		{
			name: "full payload",
			in:   `{"id":"u1","first_name":"Ada","last_name":"Lovelace","email_addresses":[{"email_address":"ada@x.io"},{"email_address":"other@x.io"}],"image_url":"https://img/u1"}`,
			want: users.User{ID: "u1", Name: "Ada Lovelace", Email: "ada@x.io", ImageURL: "https://img/u1"},
		},
		{
			name: "first name only is trimmed",
			in:   `{"id":"u2","first_name":"Ada","email_addresses":[{"email_address":"ada@x.io"}]}`,
			want: users.User{ID: "u2", Name: "Ada", Email: "ada@x.io"},
		},
		{
			name: "empty email list",
			in:   `{"id":"u3","first_name":"Bo","last_name":"Li","email_addresses":[]}`,
			want: users.User{ID: "u3", Name: "Bo Li", Email: ""},
		},
		{
			name: "no name",
			in:   `{"id":"u4"}`,
			want: users.User{ID: "u4", Name: UnknownUserName},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UserFromClerk(json.RawMessage(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUserFromClerk_Invalid(t *testing.T) {
	for _, in := range []string{`{"first_name":"x"}`, `[1,2]`, `nope`} {
		_, err := UserFromClerk(json.RawMessage(in))
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrInvalidPayload)
		assert.False(t, IsRetryable(err))
	}
}

func TestSyncUserCreation(t *testing.T) {
	store, _ := newUserStore()
	h := SyncUserCreation(store)
	ctx := context.Background()
	ev := userEvent(UserCreated, ClerkUser{ID: "u1", FirstName: "Ada", EmailAddresses: []ClerkEmail{{EmailAddress: "a@x.io"}}})

	res, err := h(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, UserID: "u1"}, res)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = h(ctx, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, users.ErrDuplicateUser)
	assert.False(t, IsRetryable(err), "duplicate ids are not retried")
}

func TestSyncUserCreation_StoreErrorIsRetryable(t *testing.T) {
	store, fake := newUserStore()
	fake.Errs["PutItem"] = errors.New("throttled")

	_, err := SyncUserCreation(store)(context.Background(), userEvent(UserCreated, ClerkUser{ID: "u1"}))
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestSyncUserUpdation(t *testing.T) {
	store, fake := newUserStore()
	ctx := context.Background()
	require.NoError(t, fake.Seed("users", users.User{ID: "u1", Name: "Old", Email: "old@x.io"}))

	res, err := SyncUserUpdation(store)(ctx, userEvent(UserUpdated, ClerkUser{
		ID:             "u1",
		FirstName:      "New",
		LastName:       "Name",
		EmailAddresses: []ClerkEmail{{EmailAddress: "new@x.io"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, UserID: "u1"}, res)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, users.User{ID: "u1", Name: "New Name", Email: "new@x.io"}, *got)
}

func TestSyncUserUpdation_MissingUserIsRetryable(t *testing.T) {
	store, fake := newUserStore()

	_, err := SyncUserUpdation(store)(context.Background(), userEvent(UserUpdated, ClerkUser{ID: "ghost"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, users.ErrUserNotFound)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, fake.Len("users"), "update must not create")
}

func TestSyncUserDeletion(t *testing.T) {
	store, fake := newUserStore()
	ctx := context.Background()
	require.NoError(t, fake.Seed("users", users.User{ID: "u1", Name: "Ada"}))
	h := SyncUserDeletion(store)

	res, err := h(ctx, userEvent(UserDeleted, map[string]string{"id": "u1"}))
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, UserID: "u1"}, res)
	assert.Equal(t, 0, fake.Len("users"))

	res, err = h(ctx, userEvent(UserDeleted, map[string]string{"id": "u1"}))
	require.NoError(t, err, "deleting an unknown user is not an error")
	assert.Equal(t, Result{Success: false, UserID: "u1"}, res)

	_, err = h(ctx, userEvent(UserDeleted, map[string]string{}))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
