package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FakeCharger records charges and can be scripted to fail, for tests.
type FakeCharger struct {
	mu      sync.Mutex
	Fail    bool
	Reason  string
	Charges []RecordedCharge
}

type RecordedCharge struct {
	CustomerID string
	Amount     int64
	Currency   string
}

func (f *FakeCharger) Charge(_ context.Context, customerID string, amount int64, currency string) (ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Charges = append(f.Charges, RecordedCharge{CustomerID: customerID, Amount: amount, Currency: currency})
	if f.Fail {
		reason := f.Reason
		if reason == "" {
			reason = "card_declined"
		}
		return ChargeResult{Success: false, FailureReason: reason}, nil
	}
	return ChargeResult{Success: true, TransactionRef: uuid.NewString()}, nil
}
