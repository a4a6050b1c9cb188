package taskname

const (
	// Notification tasks
	NotifyPaymentSettled        = "notify:payment:settled"
	NotifyPaymentFailed         = "notify:payment:failed"
	NotifyRegistrationCancelled = "notify:registration:cancelled"
	NotifyPayoutCompleted       = "notify:payout:completed"
	NotifyPayoutFailed          = "notify:payout:failed"

	// Disbursement tasks
	DisbursementSubmit = "disbursement:submit"
)
