// Package payment is the booking core's view of the card processor.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, 5xx, network.
	ErrTransient = errors.New("payment gateway temporarily unavailable")
	// ErrDeclined marks permanent failures such as a rejected card.
	ErrDeclined = errors.New("payment declined")
)

// Error carries the processor's failure code alongside the retry class.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Kind }

func Transient(code, msg string) error { return &Error{Kind: ErrTransient, Code: code, Message: msg} }
func Declined(code, msg string) error  { return &Error{Kind: ErrDeclined, Code: code, Message: msg} }

type ChargeRequest struct {
	ReservationID string
	UserID        string
	AmountCents   int64
	Currency      string
	// Method is the card token or source id handed over by the client.
	Method string
}

type ChargeResult struct {
	TransactionID string
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amountCents int64) error
}

// SandboxGateway approves every charge and refund. It is what booking-service
// runs with when no processor keys are configured.
type SandboxGateway struct {
	mu      sync.Mutex
	charges map[string]int64
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{charges: make(map[string]int64)}
}

func (g *SandboxGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient("context", err.Error())
	}
	if req.AmountCents <= 0 {
		return nil, Declined("invalid_amount", "amount must be positive")
	}
	id := "sandbox_" + uuid.NewString()
	g.mu.Lock()
	g.charges[id] = req.AmountCents
	g.mu.Unlock()
	return &ChargeResult{TransactionID: id}, nil
}

func (g *SandboxGateway) Refund(_ context.Context, transactionID string, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[transactionID]; !ok {
		return Declined("not_found", "charge "+transactionID+" not found")
	}
	delete(g.charges, transactionID)
	return nil
}
