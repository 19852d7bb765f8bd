package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
)

const (
	notificationCollection   = "notifications"
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationRepository stores inbox documents in MongoDB.
type NotificationRepository struct {
	col    *mongo.Collection
	logger *zap.Logger
}

// NewNotificationRepository binds the repository to the notifications collection.
func NewNotificationRepository(db *mongo.Database, logger *zap.Logger) *NotificationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationRepository{col: db.Collection(notificationCollection), logger: logger}
}

// EnsureIndexes creates the inbox listing index.
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("user_inbox"),
	})
	if err != nil {
		return fmt.Errorf("create notification index: %w", err)
	}
	return nil
}

// InsertMany stores one document per notification.
func (r *NotificationRepository) InsertMany(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(notifications))
	for i := range notifications {
		if notifications[i].ID.IsZero() {
			notifications[i].ID = primitive.NewObjectID()
		}
		if notifications[i].CreatedAt.IsZero() {
			notifications[i].CreatedAt = time.Now().UTC()
		}
		docs = append(docs, notifications[i])
	}
	if _, err := r.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

// ListForUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	query := bson.M{"user_id": filter.UserID}
	if filter.UnreadOnly {
		query["read"] = false
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	for cursor.Next(ctx) {
		var n models.Notification
		if err := cursor.Decode(&n); err != nil {
			r.logger.Warn("skipping undecodable notification", zap.Error(err))
			continue
		}
		notifications = append(notifications, n)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	count, err := r.col.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags a notification owned by userID as read. It returns mongo.ErrNoDocuments
// when no such notification exists.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, id primitive.ObjectID, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
