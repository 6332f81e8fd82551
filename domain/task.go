package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task is a single stored task record. OwnerID is set once at creation from
// the creator's subject id and is never reassigned afterwards.
type Task struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Priority    string             `bson:"priority" json:"priority"`
	Status      string             `bson:"status" json:"status"`
	DueDate     time.Time          `bson:"dueDate" json:"dueDate"`
	OwnerID     string             `bson:"userId" json:"userId"`
}

// TaskPatch is a partial update. Nil fields are left untouched; there is
// deliberately no owner field here.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *string
	Status      *string
	DueDate     *time.Time
}

// IsEmpty reports whether the patch would change nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Status == nil && p.DueDate == nil
}

// TaskFilter narrows a task listing. Zero values mean "no constraint";
// OwnerID is set by the caller only for non-admin identities.
type TaskFilter struct {
	Priority    string
	DueDateFrom time.Time
	OwnerID     string
}
