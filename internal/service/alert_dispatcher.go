package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
	"github.com/noah-isme/ibs-portal-api/pkg/jobs"
)

const alertJobKind = "admin_alert"

// AlertDispatcher sends admin notifications off the request path. Delivery is best effort:
// failures are retried by the queue and never reach the request that raised the alert.
type AlertDispatcher struct {
	queue    *jobs.Queue
	notifier adminNotifier
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAlertDispatcher builds a dispatcher over its own worker queue.
func NewAlertDispatcher(notifier adminNotifier, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *AlertDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AlertDispatcher{notifier: notifier, metrics: metrics, logger: logger}
	cfg.Logger = logger
	d.queue = jobs.NewQueue("admin-alerts", d.handle, cfg)
	return d
}

// Start launches the workers.
func (d *AlertDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop waits for in-flight alerts.
func (d *AlertDispatcher) Stop() {
	d.queue.Stop()
}

// Dispatch queues an alert to every admin. It never blocks; a full queue drops the alert.
func (d *AlertDispatcher) Dispatch(alert models.NotifyRequest) {
	if d == nil {
		return
	}
	alert.NotifyAdmins = true
	if _, err := d.queue.Offer(alertJobKind, &alert); err != nil {
		d.metrics.RecordAlertJob(string(alert.Type), false)
		d.logger.Warn("admin alert dropped", zap.String("type", string(alert.Type)), zap.Error(err))
	}
}

// handle delivers one alert. After a partial fan-out only the failed recipients are
// retried so nobody receives the same alert twice.
func (d *AlertDispatcher) handle(ctx context.Context, job jobs.Job) error {
	alert, ok := job.Payload.(*models.NotifyRequest)
	if !ok {
		d.logger.Error("unexpected alert payload", zap.String("job_id", job.ID), zap.String("payload", fmt.Sprintf("%T", job.Payload)))
		return nil
	}

	result, err := d.notifier.NotifyAdmins(ctx, *alert)
	if err == nil {
		d.metrics.RecordAlertJob(string(alert.Type), true)
		return nil
	}
	d.metrics.RecordAlertJob(string(alert.Type), false)

	if errors.Is(err, appErrors.ErrValidation) {
		d.logger.Error("admin alert rejected", zap.String("type", string(alert.Type)), zap.Error(err))
		return nil
	}
	if result != nil && len(result.Failed) > 0 {
		alert.UserIDs = result.Failed
		alert.NotifyAdmins = false
	}
	return err
}
