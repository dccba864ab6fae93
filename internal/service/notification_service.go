package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

const (
	maxTitleLength   = 200
	maxMessageLength = 1000
)

type notificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

type recipientDirectory interface {
	UserIDsWithRole(ctx context.Context, role models.AppRole) ([]int64, error)
	UserIDsWithPositions(ctx context.Context, positions ...models.Position) ([]int64, error)
}

type notificationPusher interface {
	Publish(ctx context.Context, event models.NotificationEvent) error
	Subscribe(ctx context.Context, userID int64) (<-chan models.NotificationEvent, func(), error)
}

// NotificationService fans notifications out to recipients and manages their read state.
type NotificationService struct {
	repo      notificationRepository
	directory recipientDirectory
	pusher    notificationPusher
	metrics   *MetricsService
	logger    *zap.Logger
	feedLimit int
	now       func() time.Time
}

// NewNotificationService constructs the service. pusher may be nil when push is disabled.
func NewNotificationService(repo notificationRepository, directory recipientDirectory, pusher notificationPusher, metrics *MetricsService, logger *zap.Logger, feedLimit int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if feedLimit <= 0 {
		feedLimit = 50
	}
	return &NotificationService{
		repo:      repo,
		directory: directory,
		pusher:    pusher,
		metrics:   metrics,
		logger:    logger,
		feedLimit: feedLimit,
		now:       time.Now,
	}
}

// NotifyAdmins validates and sanitizes the content, resolves recipients and writes one row
// per recipient. Rows are written independently: when one insert fails the rest are still
// attempted, the result lists who received a row and the first failure is returned.
func (s *NotificationService) NotifyAdmins(ctx context.Context, req models.NotifyRequest) (*models.NotifyResult, error) {
	title, message, err := validateNotification(req)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolveRecipients(ctx, req)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to resolve notification recipients")
	}

	result := &models.NotifyResult{Delivered: make([]int64, 0, len(recipients))}
	var firstErr error
	for _, userID := range recipients {
		n := &models.Notification{
			UserID:        userID,
			Type:          req.Type,
			Title:         title,
			Message:       optionalString(message),
			ReferenceType: optionalString(req.ReferenceType),
			ReferenceID:   req.ReferenceID,
		}
		if err := s.repo.Insert(ctx, n); err != nil {
			result.Failed = append(result.Failed, userID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Delivered = append(result.Delivered, userID)
		s.push(ctx, models.NotificationEvent{UserID: userID, NotificationID: n.NotificationID, Type: n.Type, At: n.CreatedAt})
	}

	s.metrics.RecordNotifications(req.Type, len(result.Delivered), len(result.Failed))
	if firstErr != nil {
		s.logger.Warn("notification fan-out partially failed",
			zap.String("type", string(req.Type)),
			zap.Int("delivered", len(result.Delivered)),
			zap.Int64s("failed", result.Failed),
			zap.Error(firstErr))
		return result, appErrors.Persistence(firstErr, fmt.Sprintf("notification delivered to %d of %d recipients", len(result.Delivered), len(recipients)))
	}
	return result, nil
}

func validateNotification(req models.NotifyRequest) (string, string, error) {
	if !req.Type.Valid() {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
	}
	if strings.TrimSpace(req.Title) == "" {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "notification title is required")
	}
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "notification title must be at most 200 characters")
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "notification message must be at most 1000 characters")
	}

	title := SanitizeNotificationText(req.Title)
	if title == "" {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "notification title is empty after sanitizing")
	}
	return title, SanitizeNotificationText(req.Message), nil
}

// SanitizeNotificationText strips angle brackets and surrounding whitespace.
func SanitizeNotificationText(s string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
}

// resolveRecipients returns explicit ids first, then Admin-role holders, then MD holders,
// without duplicates.
func (s *NotificationService) resolveRecipients(ctx context.Context, req models.NotifyRequest) ([]int64, error) {
	var admins, mds []int64
	if req.NotifyAdmins {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ids, err := s.directory.UserIDsWithRole(gctx, models.RoleAdmin)
			admins = ids
			return err
		})
		g.Go(func() error {
			ids, err := s.directory.UserIDsWithPositions(gctx, models.PositionMD)
			mds = ids
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	total := len(req.UserIDs) + len(admins) + len(mds)
	seen := make(map[int64]struct{}, total)
	recipients := make([]int64, 0, total)
	for _, group := range [][]int64{req.UserIDs, admins, mds} {
		for _, id := range group {
			if id <= 0 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}

func (s *NotificationService) push(ctx context.Context, event models.NotificationEvent) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Publish(ctx, event); err != nil {
		s.logger.Warn("notification push failed", zap.Int64("user_id", event.UserID), zap.Error(err))
	}
}

// ListForUser returns the latest notifications of the recipient.
func (s *NotificationService) ListForUser(ctx context.Context, userID int64) ([]models.Notification, error) {
	items, err := s.repo.ListForUser(ctx, userID, s.feedLimit)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// UnreadCount returns how many unread notifications the recipient has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to count notifications")
	}
	return count, nil
}

// MarkRead moves one of the recipient's notifications to read. Repeating it is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	if err := s.repo.MarkRead(ctx, userID, notificationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Persistence(err, "failed to mark notification read")
	}
	s.push(ctx, models.NotificationEvent{UserID: userID, NotificationID: notificationID, At: s.now().UTC()})
	return nil
}

// MarkAllRead marks only the caller's unread notifications and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	changed, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to mark notifications read")
	}
	if changed > 0 {
		s.push(ctx, models.NotificationEvent{UserID: userID, At: s.now().UTC()})
	}
	return changed, nil
}

// Subscribe opens the recipient's push stream. Each event is a hint to re-fetch.
func (s *NotificationService) Subscribe(ctx context.Context, userID int64) (<-chan models.NotificationEvent, func(), error) {
	if s.pusher == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnavailable, "live notifications are unavailable")
	}
	events, cancel, err := s.pusher.Subscribe(ctx, userID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "live notifications are unavailable")
	}
	return events, cancel, nil
}
