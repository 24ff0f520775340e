package consumer

import (
	"context"
	"encoding/json"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// FacilityConsumer keeps booking-service's copy of the facility catalogue in
// step with facility-service.
type FacilityConsumer struct {
	repo repository.FacilityRepository
	log  logrus.FieldLogger
}

func NewFacilityConsumer(repo repository.FacilityRepository, log logrus.FieldLogger) *FacilityConsumer {
	return &FacilityConsumer{repo: repo, log: log.WithField("component", "facility_consumer")}
}

// Start upserts every delivered facility until msgs is closed. The returned
// channel is closed once the loop has exited.
func (fc *FacilityConsumer) Start(ctx context.Context, msgs <-chan amqp.Delivery) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			fc.handleMessage(ctx, msg)
		}
		fc.log.Info("channel closed, stopping consumer")
	}()
	return done
}

func (fc *FacilityConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var f models.Facility
	if err := json.Unmarshal(msg.Body, &f); err != nil {
		fc.log.WithError(err).WithField("routing_key", msg.RoutingKey).Warn("dropping malformed facility message")
		_ = msg.Nack(false, false)
		return
	}

	log := fc.log.WithFields(logrus.Fields{"facility_id": f.ID, "routing_key": msg.RoutingKey})
	if f.ID == "" {
		log.Warn("dropping facility message without id")
		_ = msg.Nack(false, false)
		return
	}
	if v := timegrid.ValidateMinutes(timegrid.Minute(f.OpenMinute), timegrid.Minute(f.CloseMinute)); !v.Valid {
		log.WithField("reason", v.Kind.String()).Warn("dropping facility with invalid operating hours")
		_ = msg.Nack(false, false)
		return
	}

	if err := fc.repo.Upsert(ctx, &f); err != nil {
		log.WithError(err).Error("failed to upsert facility")
		_ = msg.Nack(false, true) // requeue
		return
	}

	log.WithField("name", f.Name).Info("synced facility")
	_ = msg.Ack(false)
}
