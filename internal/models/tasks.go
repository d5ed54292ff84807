package models

import "time"

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

type Task struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	DueDate     time.Time `bson:"due_date" json:"due_date"`
	Status      string    `bson:"status" json:"status"` // "pending" or "completed"
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Editable task fields accepted by UpdateTaskFields.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldDueDate     = "due_date"
)
