package enums

// AuditAction names a state change recorded in the audit log.
type AuditAction string

const (
	AuditCommissionCreate      AuditAction = "commission_create"
	AuditCommissionApprove     AuditAction = "commission_approve"
	AuditCommissionReject      AuditAction = "commission_reject"
	AuditCommissionPay         AuditAction = "commission_pay"
	AuditCommissionRecalculate AuditAction = "commission_recalculate"

	AuditInvoiceGenerate    AuditAction = "invoice_generate"
	AuditInvoiceSend        AuditAction = "invoice_send"
	AuditInvoiceMarkPaid    AuditAction = "invoice_mark_paid"
	AuditInvoiceCancel      AuditAction = "invoice_cancel"
	AuditInvoiceMarkOverdue AuditAction = "invoice_mark_overdue"

	AuditPayoutRequest  AuditAction = "payout_request"
	AuditPayoutProcess  AuditAction = "payout_process"
	AuditPayoutComplete AuditAction = "payout_complete"
	AuditPayoutFail     AuditAction = "payout_fail"
	AuditPayoutCancel   AuditAction = "payout_cancel"

	AuditResellerTierChange AuditAction = "reseller_tier_change"
	AuditReportScheduleRun  AuditAction = "report_schedule_run"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}
