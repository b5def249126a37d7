package orders

import "time"

// TransferHold is the grace period a bank-transfer order keeps its stock
// commitment while waiting for proof of payment.
const TransferHold = 24 * time.Hour

// PaymentDueAt returns the payment deadline persisted on the order at
// creation. Card orders have none: the gateway callback owns their
// lifecycle and the expiration sweep never selects them.
func PaymentDueAt(m PaymentMethod, now time.Time) *time.Time {
	if m == PaymentTransfer {
		t := now.Add(TransferHold)
		return &t
	}
	return nil
}
