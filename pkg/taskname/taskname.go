package taskname

const (
	// Notification tasks
	NotificationDispatch = "notification:dispatch"

	// Scheduled sweeps, enqueued by the scheduler and run on the worker
	CampaignExpiryRun   = "campaign:expiry:run"
	PaymentReconcileRun = "payment:reconcile:run"
)
