package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/imrishuroy/go-storefront-sync/internal/users"
)

// UnknownUserName is stored when the provider sends neither first nor last name.
const UnknownUserName = "Unknown User"

// UserStore is the part of users.Store the user functions need.
type UserStore interface {
	Create(ctx context.Context, u users.User) error
	Update(ctx context.Context, u users.User) (*users.User, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// UserFromClerk derives the stored user document from a clerk/user.* payload.
func UserFromClerk(data json.RawMessage) (users.User, error) {
	var cu ClerkUser
	if err := json.Unmarshal(data, &cu); err != nil {
		return users.User{}, invalid("decode user: %v", err)
	}
	if strings.TrimSpace(cu.ID) == "" {
		return users.User{}, invalid("user id is missing")
	}

	email := ""
	if len(cu.EmailAddresses) > 0 {
		email = cu.EmailAddresses[0].EmailAddress
	}
	name := strings.TrimSpace(cu.FirstName + " " + cu.LastName)
	if name == "" {
		name = UnknownUserName
	}
	return users.User{
		ID:       cu.ID,
		Name:     name,
		Email:    email,
		ImageURL: cu.ImageURL,
	}, nil
}

// SyncUserCreation stores the user from a clerk/user.created event.
func SyncUserCreation(store UserStore) Handler {
	return func(ctx context.Context, ev Event) (Result, error) {
		u, err := UserFromClerk(ev.Data)
		if err != nil {
			return Result{}, err
		}
		if err := store.Create(ctx, u); err != nil {
			if errors.Is(err, users.ErrDuplicateUser) {
				return Result{}, Permanent(err)
			}
			return Result{}, Retryable(fmt.Errorf("create user %s: %w", u.ID, err))
		}
		return Result{Success: true, UserID: u.ID}, nil
	}
}

// SyncUserUpdation applies a clerk/user.updated event to the stored user.
// A missing user is retried since the created event may still be in flight.
func SyncUserUpdation(store UserStore) Handler {
	return func(ctx context.Context, ev Event) (Result, error) {
		u, err := UserFromClerk(ev.Data)
		if err != nil {
			return Result{}, err
		}
		if _, err := store.Update(ctx, u); err != nil {
			return Result{}, Retryable(fmt.Errorf("update user %s: %w", u.ID, err))
		}
		return Result{Success: true, UserID: u.ID}, nil
	}
}

// SyncUserDeletion removes the user named by a clerk/user.deleted event.
// Deleting an unknown user is reported with Success=false and no error.
func SyncUserDeletion(store UserStore) Handler {
	return func(ctx context.Context, ev Event) (Result, error) {
		var data struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return Result{}, invalid("decode user: %v", err)
		}
		if data.ID == "" {
			return Result{}, invalid("user id is missing")
		}
		existed, err := store.Delete(ctx, data.ID)
		if err != nil {
			return Result{}, Retryable(fmt.Errorf("delete user %s: %w", data.ID, err))
		}
		return Result{Success: existed, UserID: data.ID}, nil
	}
}
