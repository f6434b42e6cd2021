package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/metrics"
)

// defaultHighDebtThreshold is IQD minor units of outstanding debt that
// triggers an observational admin alert.
const defaultHighDebtThreshold = 100_000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type payoutSweeper interface {
	SweepExpiredGracePeriods(ctx context.Context, now time.Time) (permissions.SweepResult, error)
}

type debtEnforcer interface {
	EnforceDebtSuspensions(ctx context.Context, now time.Time) (int, error)
}

type debtAlerter interface {
	HighDebtAlert(ctx context.Context, threshold int64) (int, error)
}

type holdReleaser interface {
	ReleaseExpiredHolds(ctx context.Context, now time.Time) (int, error)
}

// GracePeriodJobParams configure the payout clearance sweep.
type GracePeriodJobParams struct {
	Logger  *logger.Logger
	Sweeper payoutSweeper
	Metrics *metrics.CronJobMetrics
}

// NewGracePeriodJob builds the job that clears payouts whose grace window
// lapsed.
func NewGracePeriodJob(params GracePeriodJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("payout sweeper required")
	}
	return &gracePeriodJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type gracePeriodJob struct {
	logg    *logger.Logger
	sweeper payoutSweeper
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *gracePeriodJob) Name() string { return "grace-period-sweep" }

func (j *gracePeriodJob) Run(ctx context.Context) error {
	result, err := j.sweeper.SweepExpiredGracePeriods(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("grace period sweep: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddTransitioned(j.Name(), result.Transitioned)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"transitioned": result.Transitioned,
		"failed":       result.Failed,
	})
	j.logg.Info(logCtx, "grace period sweep complete")
	if result.Failed > 0 {
		return fmt.Errorf("grace period sweep: %d records failed", result.Failed)
	}
	return nil
}

// DebtEnforcementJobParams configure the overdue-debt suspension job.
type DebtEnforcementJobParams struct {
	Logger   *logger.Logger
	Enforcer debtEnforcer
	Metrics  *metrics.CronJobMetrics
}

// NewDebtEnforcementJob builds the job that suspends sellers with overdue
// platform debt.
func NewDebtEnforcementJob(params DebtEnforcementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Enforcer == nil {
		return nil, fmt.Errorf("debt enforcer required")
	}
	return &debtEnforcementJob{
		logg:     params.Logger,
		enforcer: params.Enforcer,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type debtEnforcementJob struct {
	logg     *logger.Logger
	enforcer debtEnforcer
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
}

func (j *debtEnforcementJob) Name() string { return "debt-enforcement" }

func (j *debtEnforcementJob) Run(ctx context.Context) error {
	suspended, err := j.enforcer.EnforceDebtSuspensions(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("debt enforcement: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddTransitioned(j.Name(), suspended)
	}
	j.logg.Info(j.logg.WithField(ctx, "suspended", suspended), "debt enforcement complete")
	return nil
}

// HighDebtAlertJobParams configure the observational debt alert.
type HighDebtAlertJobParams struct {
	Logger    *logger.Logger
	Alerter   debtAlerter
	Threshold int64
}

// NewHighDebtAlertJob builds the job that warns admins about sellers whose
// outstanding debt crossed the threshold. It never mutates payout state.
func NewHighDebtAlertJob(params HighDebtAlertJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Alerter == nil {
		return nil, fmt.Errorf("debt alerter required")
	}
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = defaultHighDebtThreshold
	}
	return &highDebtAlertJob{
		logg:      params.Logger,
		alerter:   params.Alerter,
		threshold: threshold,
	}, nil
}

type highDebtAlertJob struct {
	logg      *logger.Logger
	alerter   debtAlerter
	threshold int64
}

func (j *highDebtAlertJob) Name() string { return "high-debt-alert" }

func (j *highDebtAlertJob) Run(ctx context.Context) error {
	alerted, err := j.alerter.HighDebtAlert(ctx, j.threshold)
	if err != nil {
		return fmt.Errorf("high debt alert: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"alerted":   alerted,
		"threshold": j.threshold,
	})
	j.logg.Info(logCtx, "high debt alert complete")
	return nil
}

// WalletHoldJobParams configure the wallet hold release job.
type WalletHoldJobParams struct {
	Logger   *logger.Logger
	Releaser holdReleaser
	Metrics  *metrics.CronJobMetrics
}

// NewWalletHoldJob builds the job that flips lapsed pending wallet entries
// to available.
func NewWalletHoldJob(params WalletHoldJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Releaser == nil {
		return nil, fmt.Errorf("hold releaser required")
	}
	return &walletHoldJob{
		logg:     params.Logger,
		releaser: params.Releaser,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type walletHoldJob struct {
	logg     *logger.Logger
	releaser holdReleaser
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
}

func (j *walletHoldJob) Name() string { return "wallet-hold-release" }

func (j *walletHoldJob) Run(ctx context.Context) error {
	released, err := j.releaser.ReleaseExpiredHolds(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("wallet hold release: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddTransitioned(j.Name(), released)
	}
	j.logg.Info(j.logg.WithField(ctx, "released", released), "wallet hold release complete")
	return nil
}
