package domain

import "time"

// PaymentLogStatus is the outcome of one payment attempt against an order.
type PaymentLogStatus string

const (
	PaymentFailed              PaymentLogStatus = "FAILED"
	PaymentFailedNotEnoughMoney PaymentLogStatus = "FAILED_NOT_ENOUGH_MONEY"
	PaymentSuccess             PaymentLogStatus = "SUCCESS"
)

// PaymentLogRecord is one append-only entry in an order's payment history.
type PaymentLogRecord struct {
	Timestamp time.Time
	Status    PaymentLogStatus
	Amount    int64
}

// LastPayment returns the most recent record, or false if there is none.
func LastPayment(history []PaymentLogRecord) (PaymentLogRecord, bool) {
	if len(history) == 0 {
		return PaymentLogRecord{}, false
	}
	return history[len(history)-1], true
}

// FinancialRecordType classifies an entry in the target's financial ledger.
type FinancialRecordType string

const (
	FinancialDeposit  FinancialRecordType = "DEPOSIT"
	FinancialWithdraw FinancialRecordType = "WITHDRAW"
	FinancialRefund   FinancialRecordType = "REFUND"
)

// FinancialLogRecord is a read-only entry the harness consults to check
// invariant I2 (Σ WITHDRAW == Σ REFUND for orders ending in Refund).
type FinancialLogRecord struct {
	Type      FinancialRecordType
	Amount    int64
	OrderID   string
	Timestamp time.Time
}

// SumFinancial totals the amount of every record matching kind.
func SumFinancial(records []FinancialLogRecord, kind FinancialRecordType) int64 {
	var total int64
	for _, r := range records {
		if r.Type == kind {
			total += r.Amount
		}
	}
	return total
}
