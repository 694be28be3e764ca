package domain

import (
	"fmt"
	"strings"
)

// DepositStatus is the outcome reported by the payment provider.
type DepositStatus string

const (
	DepositRecharged DepositStatus = "recharge"
	DepositRefunded  DepositStatus = "refund"
	DepositFailed    DepositStatus = "failed"
)

// DepositStatuses lists every settlement outcome.
var DepositStatuses = []DepositStatus{DepositRecharged, DepositRefunded, DepositFailed}

// EventType returns the user-facing event for the outcome.
func (s DepositStatus) EventType() (EventType, bool) {
	switch s {
	case DepositRecharged:
		return EventDepositRecharge, true
	case DepositRefunded:
		return EventDepositRefund, true
	case DepositFailed:
		return EventDepositFailed, true
	}
	return "", false
}

// DepositLinkPrefix is the in-app path of a deposit.
const DepositLinkPrefix = "/deposit"

// DepositSettlement is a settled payment reported by the payment layer.
type DepositSettlement struct {
	UserID    string
	DepositID string
	Status    DepositStatus
	Amount    *int64
}

// Link returns the deep link for the settlement.
func (d DepositSettlement) Link() string {
	return DepositLinkPrefix + "/" + d.DepositID
}

// Message returns the toast shown to the depositor.
func (d DepositSettlement) Message() string {
	var b strings.Builder
	switch d.Status {
	case DepositRecharged:
		b.WriteString("Deposit received")
	case DepositRefunded:
		b.WriteString("Deposit refunded")
	default:
		return "Deposit failed, no charge was made"
	}
	if d.Amount != nil {
		fmt.Fprintf(&b, ": %d", *d.Amount)
	}
	return b.String()
}
