package payment

import (
	"context"
	"errors"
	"net"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/sirupsen/logrus"
)

type OmiseGateway struct {
	client *omise.Client
	log    logrus.FieldLogger
}

func NewOmiseClient(publicKey, secretKey string) (*omise.Client, error) {
	return omise.NewClient(publicKey, secretKey)
}

func NewOmiseGateway(client *omise.Client, log logrus.FieldLogger) *OmiseGateway {
	return &OmiseGateway{client: client, log: log.WithField("component", "omise")}
}

func (g *OmiseGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient("context", err.Error())
	}
	if req.AmountCents <= 0 || req.Method == "" || req.Currency == "" {
		return nil, Declined("invalid_request", "amount, currency and payment method are required")
	}

	ch := &omise.Charge{}
	op := &operations.CreateCharge{
		Amount:   req.AmountCents,
		Currency: req.Currency,
		Card:     req.Method,
		Metadata: map[string]interface{}{
			"reservation_id": req.ReservationID,
			"user_id":        req.UserID,
		},
	}
	if err := g.withContext(ctx).Do(ch, op); err != nil {
		return nil, classify(err)
	}

	g.log.WithFields(logrus.Fields{
		"reservation_id": req.ReservationID,
		"charge_id":      ch.ID,
		"status":         string(ch.Status),
	}).Debug("charge created")

	switch string(ch.Status) {
	case "successful":
		return &ChargeResult{TransactionID: ch.ID}, nil
	case "failed":
		var code, msg string
		if ch.FailureCode != nil {
			code = *ch.FailureCode
		}
		if ch.FailureMessage != nil {
			msg = *ch.FailureMessage
		}
		return nil, Declined(code, msg)
	default:
		// pending / awaiting authorization: the slot cannot wait for a
		// redirect flow, and retrying would create a second charge.
		return nil, Declined("not_captured", "charge "+ch.ID+" is "+string(ch.Status))
	}
}

func (g *OmiseGateway) Refund(ctx context.Context, transactionID string, amountCents int64) error {
	if err := ctx.Err(); err != nil {
		return Transient("context", err.Error())
	}
	refund := &omise.Refund{}
	op := &operations.CreateRefund{
		ChargeID: transactionID,
		Amount:   amountCents,
	}
	if err := g.withContext(ctx).Do(refund, op); err != nil {
		return classify(err)
	}
	g.log.WithFields(logrus.Fields{"charge_id": transactionID, "refund_id": refund.ID}).Info("refund created")
	return nil
}

// withContext scopes a copy of the shared client to ctx; the client's
// WithContext mutates it in place.
func (g *OmiseGateway) withContext(ctx context.Context) *omise.Client {
	c := *g.client
	c.WithContext(ctx)
	return &c
}

// classify sorts processor errors into retryable and permanent ones.
func classify(err error) error {
	var oe *omise.Error
	if errors.As(err, &oe) {
		if oe.StatusCode >= 500 || oe.StatusCode == 429 {
			return Transient(oe.Code, oe.Message)
		}
		return Declined(oe.Code, oe.Message)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient("network", ne.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient("context", err.Error())
	}
	// Anything else never reached the processor's decision logic.
	return Transient("unknown", err.Error())
}
