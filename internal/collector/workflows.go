package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const (
	alertTaskQueue        = "churn-alert-task-queue"
	alertWorkflowName     = "churnopp.alert.dispatch"
	sendAlertActivityName = "churnopp.alert.send"
)

// AlertActivities hosts the activity implementations backing the alert
// workflow. The inner dispatcher does the actual delivery (webhook, log).
type AlertActivities struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewAlertActivities(dispatcher Dispatcher, logger *slog.Logger) *AlertActivities {
	return &AlertActivities{dispatcher: dispatcher, logger: logger.With("component", "alerts.activities")}
}

// SendChurnAlertActivity delivers one alert through the inner dispatcher.
func (a *AlertActivities) SendChurnAlertActivity(ctx context.Context, alert ChurnAlert) error {
	if err := a.dispatcher.Dispatch(ctx, alert); err != nil {
		a.logger.Error("activity alert delivery failed", "account_id", alert.AccountID, "user_id", alert.UserID, "error", err)
		return err
	}
	a.logger.Info("activity alert delivered", "account_id", alert.AccountID, "user_id", alert.UserID, "churn_score", alert.Score)
	return nil
}

// ChurnAlertWorkflow delivers a single alert with bounded retries, so a
// flaky alert endpoint does not lose high-risk notifications.
func ChurnAlertWorkflow(ctx workflow.Context, alert ChurnAlert) error {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)

	logger := workflow.GetLogger(ctx)
	logger.Info("alert workflow started", "account_id", alert.AccountID, "user_id", alert.UserID, "churn_score", alert.Score)
	if err := workflow.ExecuteActivity(ctx, sendAlertActivityName, alert).Get(ctx, nil); err != nil {
		logger.Error("alert activity failed", "error", err)
		return err
	}
	logger.Info("alert workflow finished", "account_id", alert.AccountID, "user_id", alert.UserID)
	return nil
}

// RegisterAlertWorker wires up the Temporal worker consuming the alert task
// queue. The provided dispatcher performs the terminal delivery.
func RegisterAlertWorker(c client.Client, dispatcher Dispatcher, logger *slog.Logger) temporalworker.Worker {
	w := temporalworker.New(c, alertTaskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(ChurnAlertWorkflow, workflow.RegisterOptions{Name: alertWorkflowName})
	activities := NewAlertActivities(dispatcher, logger)
	w.RegisterActivityWithOptions(activities.SendChurnAlertActivity, activity.RegisterOptions{Name: sendAlertActivityName})
	return w
}

// TemporalDispatcher starts the alert workflow asynchronously; it returns
// as soon as the workflow is accepted and never waits for delivery.
type TemporalDispatcher struct {
	client client.Client
	logger *slog.Logger
}

func NewTemporalDispatcher(c client.Client, logger *slog.Logger) *TemporalDispatcher {
	return &TemporalDispatcher{client: c, logger: logger.With("component", "alerts.temporal")}
}

func (d *TemporalDispatcher) Dispatch(ctx context.Context, alert ChurnAlert) error {
	workflowID := fmt.Sprintf("churn-alert-%s-%s-%d", alert.AccountID, alert.UserID, time.Now().UnixNano())
	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                alertTaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionTimeout: 10 * time.Minute,
	}
	we, err := d.client.ExecuteWorkflow(ctx, options, alertWorkflowName, alert)
	if err != nil {
		d.logger.Error("start alert workflow failed", "account_id", alert.AccountID, "user_id", alert.UserID, "error", err)
		return err
	}
	d.logger.Info("alert workflow dispatched", "workflow_id", we.GetID(), "run_id", we.GetRunID(), "account_id", alert.AccountID, "user_id", alert.UserID)
	return nil
}

// AlertTaskQueue exposes the queue name so callers can reference it in
// metrics and tests.
func AlertTaskQueue() string {
	return alertTaskQueue
}
