package consumer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fake amqp.Acknowledger ---

type ackRecorder struct {
	acked    int
	nacked   int
	requeued int
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// --- Repository that refuses writes ---

type brokenRepo struct {
	*repository.MemoryFacilityRepository
}

func (brokenRepo) Upsert(context.Context, *models.Facility) error {
	return errors.New("connection refused")
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, RoutingKey: "facility.created", Body: []byte(body)}
}

func TestHandleMessage_UpsertsFacility(t *testing.T) {
	repo := repository.NewMemoryFacilityRepository()
	fc := NewFacilityConsumer(repo, quietLogger())
	ack := &ackRecorder{}

	fc.handleMessage(context.Background(), delivery(ack,
		`{"id":"court-3","name":"Court 3","sport":"tennis","open_minute":420,"close_minute":1260,"price_per_slot_cents":20000,"currency":"THB","active":true}`))

	assert.Equal(t, 1, ack.acked)
	f, err := repo.FindByID(context.Background(), "court-3")
	require.NoError(t, err)
	assert.Equal(t, "Court 3", f.Name)
	assert.Equal(t, 420, f.OpenMinute)
	assert.True(t, f.Active)

	// an update replaces the stored copy
	fc.handleMessage(context.Background(), delivery(ack,
		`{"id":"court-3","name":"Court 3","open_minute":360,"close_minute":1440,"price_per_slot_cents":20000,"active":true}`))
	f, err = repo.FindByID(context.Background(), "court-3")
	require.NoError(t, err)
	assert.Equal(t, 360, f.OpenMinute)
	assert.Equal(t, 1440, f.CloseMinute)
}

func TestHandleMessage_DropsMalformed(t *testing.T) {
	fc := NewFacilityConsumer(repository.NewMemoryFacilityRepository(), quietLogger())

	for _, body := range []string{
		`not json`,
		`{"name":"no id","open_minute":480,"close_minute":1320}`,
		`{"id":"court-x","open_minute":485,"close_minute":1320}`,
	} {
		ack := &ackRecorder{}
		fc.handleMessage(context.Background(), delivery(ack, body))
		assert.Equal(t, 1, ack.nacked, body)
		assert.Zero(t, ack.requeued, body)
		assert.Zero(t, ack.acked, body)
	}
}

func TestHandleMessage_RequeuesOnStoreError(t *testing.T) {
	fc := NewFacilityConsumer(brokenRepo{repository.NewMemoryFacilityRepository()}, quietLogger())
	ack := &ackRecorder{}

	fc.handleMessage(context.Background(), delivery(ack, `{"id":"court-1","open_minute":480,"close_minute":1320}`))

	assert.Equal(t, 1, ack.requeued)
	assert.Zero(t, ack.acked)
}

func TestStart_StopsWhenChannelCloses(t *testing.T) {
	repo := repository.NewMemoryFacilityRepository()
	fc := NewFacilityConsumer(repo, quietLogger())
	msgs := make(chan amqp.Delivery, 1)
	ack := &ackRecorder{}

	done := fc.Start(context.Background(), msgs)
	msgs <- delivery(ack, `{"id":"court-9","name":"Court 9","open_minute":480,"close_minute":1320}`)
	close(msgs)
	<-done

	_, err := repo.FindByID(context.Background(), "court-9")
	assert.NoError(t, err)
	assert.Equal(t, 1, ack.acked)
}
