package events

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

func TestEventBus(t *testing.T) {
	now := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	bus := NewEventBusWithClock(clockwork.NewFakeClockAt(now))

	var received *Event
	callCount := 0
	bus.Subscribe("test_event", func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	require.NoError(t, bus.PublishJSON("test_event", map[string]string{"foo": "bar"}))
	require.NoError(t, bus.PublishJSON("other_event", map[string]string{}))

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, "test_event", received.Type)
	assert.NotEmpty(t, received.ID)
	assert.Equal(t, now, received.CreatedAt)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "bar", decoded["foo"])
}

func TestEventBusSubscribeAllAndErrors(t *testing.T) {
	bus := NewEventBus()
	var typed, all int
	bus.Subscribe("event", func(_ *Event) error { typed++; return errors.New("boom") })
	bus.SubscribeAll(func(_ *Event) error { all++; return nil })

	errs := bus.Publish(&Event{Type: "event"})
	assert.Len(t, errs, 1)
	bus.Publish(&Event{Type: "another"})

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
}

func TestEventBusNilAndBadPayload(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON("x", 1))

	assert.Error(t, NewEventBus().PublishJSON("x", make(chan int)))
}

func TestEventBusConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe("e", func(_ *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.PublishJSON("e", i)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, count)
}

func TestStatusEventType(t *testing.T) {
	assert.Equal(t, EventReservationConfirmed, StatusEventType(models.StatusConfirmed))
	assert.Equal(t, EventReservationRejected, StatusEventType(models.StatusRejected))
	assert.Equal(t, EventReservationCancelled, StatusEventType(models.StatusCancelled))
	assert.Equal(t, EventReservationExpired, StatusEventType(models.StatusExpired))
	assert.Equal(t, EventReservationUpdated, StatusEventType(models.StatusPending))
}

func TestNewReservationPayload(t *testing.T) {
	r := &models.Reservation{
		ID:        5,
		FieldID:   2,
		TeamID:    null.IntFrom(9),
		Date:      "2025-12-02",
		StartTime: schedule.MustParseTimeOfDay("18:00"),
		EndTime:   schedule.MustParseTimeOfDay("19:00"),
		Status:    models.StatusPending,
	}
	p := NewReservationPayload(r, models.ActorUser)
	assert.Equal(t, int64(9), p.TeamID)
	assert.Zero(t, p.UserID)
	assert.Equal(t, "18:00", p.StartTime)
	assert.Equal(t, models.ActorUser, p.ChangedBy)
}

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func TestNATSForwarder(t *testing.T) {
	logger := zerolog.New(io.Discard)
	pub := &fakePublisher{}
	bus := NewEventBus()
	NewNATSForwarder(pub, "sportclub.events", &logger).Attach(bus)

	require.NoError(t, bus.PublishJSON(EventReservationCreated, ReservationEventPayload{ReservationID: 1, Date: "2025-12-02"}))
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "sportclub.events.reservation_created", pub.subjects[0])

	ev, err := DecodeEvent(pub.data[0])
	require.NoError(t, err)
	assert.Equal(t, EventReservationCreated, ev.Type)
	var payload ReservationEventPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, int64(1), payload.ReservationID)
}

func TestNATSForwarderPublishError(t *testing.T) {
	logger := zerolog.New(io.Discard)
	f := NewNATSForwarder(&fakePublisher{err: errors.New("no servers")}, "p", &logger)
	assert.Error(t, f.Forward(&Event{Type: "x"}))
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent([]byte("nope"))
	assert.Error(t, err)
	_, err = DecodeEvent([]byte(`{"id":"1"}`))
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "a.b.c", Subject("a.b", "c"))
	assert.Equal(t, "a.b.c", Subject("a.b.", "c"))
}
