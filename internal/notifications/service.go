package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox/payloads"
	"github.com/alikhafaji/mazadpay-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type adminDirectory interface {
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Service creates and reads in-app notifications.
type Service interface {
	NotifySeller(ctx context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, message string) error
	NotifyAdmins(ctx context.Context, kind enums.NotificationType, title, message string) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ListParams configures pagination for a user's notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	admins adminDirectory
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams wires the notifications service collaborators.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Admins adminDirectory
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService builds the notifications service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Admins == nil {
		return nil, fmt.Errorf("admin directory required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		admins: params.Admins,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) NotifySeller(ctx context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, message string) error {
	if sellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	return s.notify(ctx, []uuid.UUID{sellerID}, kind, title, message)
}

// NotifyAdmins fans one notification out to every active admin.
func (s *service) NotifyAdmins(ctx context.Context, kind enums.NotificationType, title, message string) error {
	adminIDs, err := s.admins.ListAdminIDs(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list admins")
	}
	if len(adminIDs) == 0 {
		s.logg.Warn(ctx, "no active admins to notify")
		return nil
	}
	return s.notify(ctx, adminIDs, kind, title, message)
}

func (s *service) notify(ctx context.Context, userIDs []uuid.UUID, kind enums.NotificationType, title, message string) error {
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", kind))
	}
	if title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, userID := range userIDs {
			notification := &models.Notification{
				ID:      uuid.New(),
				UserID:  userID,
				Type:    kind,
				Title:   title,
				Message: message,
			}
			if err := repo.Create(ctx, notification); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
			}
			err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventNotificationRequested,
				AggregateType: enums.AggregateNotification,
				AggregateID:   notification.ID,
				Version:       1,
				Data: payloads.NotificationRequestedEvent{
					NotificationID: notification.ID,
					UserID:         userID,
					Type:           kind,
					Title:          title,
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
