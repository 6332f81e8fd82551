package api

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskman/domain"
)

// UserStore persists credential records.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	InsertUser(ctx context.Context, user domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// TaskStore persists task records. UpdateTask and DeleteTask condition the
// write on both id and owner so an ownership check made against a pre-write
// read cannot be invalidated by a concurrent reassignment; a write that
// matches nothing after a successful read surfaces as domain.ErrConflict.
type TaskStore interface {
	InsertTask(ctx context.Context, task domain.Task) (primitive.ObjectID, error)
	FindTasks(ctx context.Context, filter domain.TaskFilter, skip, limit int64) ([]domain.Task, error)
	GetTask(ctx context.Context, id primitive.ObjectID) (domain.Task, error)
	UpdateTask(ctx context.Context, id primitive.ObjectID, ownerID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, id primitive.ObjectID, ownerID string) error
}

// Authenticator is implemented by types able to turn auth headers into
// verified identities.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}
