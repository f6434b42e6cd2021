package accounts

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
)

// Service manages seller account standing.
type Service interface {
	SuspendSellerTx(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) (bool, error)
	ReinstateSeller(ctx context.Context, sellerID uuid.UUID) error
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams wires the accounts service collaborators.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService builds the accounts service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
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
		logg:   params.Logger,
		now:    now,
	}, nil
}

// SuspendSellerTx deactivates a seller inside the caller's transaction.
// Returns false when the account was already suspended, so enforcement
// sweeps stay idempotent.
func (s *service) SuspendSellerTx(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) (bool, error) {
	if sellerID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}

	suspendedAt := s.now().UTC()
	rows, err := s.repo.WithTx(tx).Suspend(ctx, sellerID, suspendedAt)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suspend seller")
	}
	if rows == 0 {
		return false, nil
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSellerSuspended,
		AggregateType: enums.AggregateSellerAccount,
		AggregateID:   sellerID,
		Version:       1,
		Data: payloads.SellerSuspendedEvent{
			SellerID:    sellerID,
			SuspendedAt: suspendedAt,
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) ReinstateSeller(ctx context.Context, sellerID uuid.UUID) error {
	if sellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).Reinstate(ctx, sellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reinstate seller")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "seller is not suspended")
		}
		s.logg.Info(s.logg.WithSellerID(ctx, sellerID.String()), "seller reinstated")
		return nil
	})
}

func (s *service) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListAdminIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list admins")
	}
	return ids, nil
}
