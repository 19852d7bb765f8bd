package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
	"github.com/noah-isme/school-timetable-api/pkg/jobs"
)

// JobTypeNotificationDeliver identifies inbox fan-out jobs.
const JobTypeNotificationDeliver = "notification.deliver"

type notificationStore interface {
	InsertMany(ctx context.Context, notifications []models.Notification) error
	ListForUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, id primitive.ObjectID, at time.Time) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// Notifier is what domain services use to tell users something changed.
type Notifier interface {
	Publish(ctx context.Context, msg models.NotificationMessage) error
}

// NotificationService writes in-app inbox entries, through the job queue when one is attached.
type NotificationService struct {
	store  notificationStore
	queue  jobEnqueuer
	logger *zap.Logger
	clock  clock.Clock
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(store notificationStore, logger *zap.Logger, clk clock.Clock) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, logger: logger, clock: clock.OrSystem(clk)}
}

// AttachQueue routes Publish through q. HandleJob must be the queue's handler.
func (s *NotificationService) AttachQueue(q jobEnqueuer) {
	s.queue = q
}

// Publish delivers msg to every recipient. Without a queue the write is synchronous.
func (s *NotificationService) Publish(ctx context.Context, msg models.NotificationMessage) error {
	if s == nil || len(msg.Recipients) == 0 {
		return nil
	}
	if s.queue == nil {
		return s.deliver(ctx, msg)
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeNotificationDeliver,
		Payload: msg,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification dropped", zap.String("type", string(msg.Type)), zap.Int("recipients", len(msg.Recipients)), zap.Error(err))
		return err
	}
	return nil
}

// HandleJob is the jobs.Handler for notification fan-out.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(models.NotificationMessage)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return s.deliver(ctx, msg)
}

func (s *NotificationService) deliver(ctx context.Context, msg models.NotificationMessage) error {
	now := s.clock.Now()
	docs := make([]models.Notification, 0, len(msg.Recipients))
	seen := make(map[string]struct{}, len(msg.Recipients))
	for _, userID := range msg.Recipients {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		docs = append(docs, models.Notification{
			UserID:    userID,
			Type:      msg.Type,
			Title:     msg.Title,
			Body:      msg.Body,
			Data:      msg.Data,
			CreatedAt: now,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.store.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("deliver %s: %w", msg.Type, err)
	}
	return nil
}

// ListForUser returns the user's inbox and their unread count.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int64) ([]models.Notification, int64, error) {
	items, err := s.store.ListForUser(ctx, models.NotificationFilter{UserID: userID, UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return items, unread, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid notification id")
	}
	if err := s.store.MarkRead(ctx, userID, objectID, s.clock.Now()); err != nil {
		if repository.IsNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification")
	}
	return nil
}
