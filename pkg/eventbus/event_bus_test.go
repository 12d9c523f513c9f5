package eventbus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type createdEvent struct {
	name string
}

type otherEvent struct{}

func newTestBus() EventBus {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewEventPublisher(log)
}

func TestPublish_DeliversToMatchingHandlers(t *testing.T) {
	bus := newTestBus()

	var got []string
	bus.Subscribe(func(e createdEvent) {
		got = append(got, e.name)
	})
	bus.Subscribe(func(e otherEvent) {
		t.Error("handler for unrelated event fired")
	})

	bus.Publish(createdEvent{name: "first"})
	bus.Publish(createdEvent{name: "second"})

	assert.Equal(t, []string{"first", "second"}, got)
	assert.Equal(t, 2, bus.SubscribersCount())
}

func TestPublish_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := newTestBus()

	delivered := false
	bus.Subscribe(func(e createdEvent) {
		panic("boom")
	})
	bus.Subscribe(func(e createdEvent) {
		delivered = true
	})

	bus.Publish(createdEvent{name: "x"})
	assert.True(t, delivered)
}

func TestSubscribe_NonFunctionPanics(t *testing.T) {
	bus := newTestBus()
	assert.Panics(t, func() {
		bus.Subscribe("not a function")
	})
}
