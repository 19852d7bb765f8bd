package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType classifies inbox entries.
type NotificationType string

const (
	NotificationTimetableUpdated NotificationType = "TIMETABLE_UPDATED"
	NotificationSlotsRemoved     NotificationType = "TIMETABLE_SLOTS_REMOVED"
	NotificationQuizGraded       NotificationType = "QUIZ_GRADED"
	NotificationEnrolled         NotificationType = "SECTION_ENROLLED"
)

// Notification is one in-app inbox document.
type Notification struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    string             `json:"user_id" bson:"user_id"`
	Type      NotificationType   `json:"type" bson:"type"`
	Title     string             `json:"title" bson:"title"`
	Body      string             `json:"body" bson:"body"`
	Data      map[string]string  `json:"data,omitempty" bson:"data,omitempty"`
	Read      bool               `json:"read" bson:"read"`
	ReadAt    *time.Time         `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// NotificationMessage is what services publish; it fans out to one document per recipient.
type NotificationMessage struct {
	Recipients []string
	Type       NotificationType
	Title      string
	Body       string
	Data       map[string]string
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int64
}
