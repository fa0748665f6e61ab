package model

// PaymentResult is what the payment collaborator reports for a charge.
// PayerID is only filled in when the gateway itself vouches for the
// payment.
type PaymentResult struct {
	Success       bool   `json:"success"`
	Reference     string `json:"reference"`
	AmountCents   int64  `json:"amount_cents"`
	PayerID       string `json:"payer_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// RefundResult is what the payment collaborator reports for a refund.
type RefundResult struct {
	Reference string `json:"reference"`
}
