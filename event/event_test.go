// Copyright 2024 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/internal/test/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testEvtType event.EventType = "test.event"

func TestEventBusSubscribeFuncRunsInline(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	var got []int
	eb.SubscribeFunc(testEvtType, func(_ context.Context, evt event.Event) error {
		v, ok := evt.Data.(int)
		require.True(t, ok, "event data was not int")
		got = append(got, v)
		return nil
	})
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, 999)))
	// No waiting: delivery has completed by the time Publish returns
	assert.Equal(t, []int{999}, got)
}

func TestEventBusDeliveryOrder(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
			order = append(order, name)
			return nil
		})
	}
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil)))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEventBusPublishJoinsErrors(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	errOne := errors.New("one")
	errTwo := errors.New("two")
	called := 0
	eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		return errOne
	})
	eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		called++
		return nil
	})
	eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		return errTwo
	})
	err := eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errOne)
	assert.ErrorIs(t, err, errTwo)
	assert.Equal(t, 1, called, "failing subscriber should not stop delivery")
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		panic("boom")
	})
	err := eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	calls := 0
	subId := eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		calls++
		return nil
	})
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil)))
	eb.Unsubscribe(testEvtType, subId)
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil)))
	assert.Equal(t, 1, calls)
}

func TestEventBusUnsubscribeDuringPublish(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	calls := 0
	var selfId event.EventSubscriberId
	selfId = eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		eb.Unsubscribe(testEvtType, selfId)
		return nil
	})
	eb.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		calls++
		return nil
	})
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil)))
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil)))
	assert.Equal(t, 2, calls)
}

func TestEventBusQueueSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, ch := eb.Subscribe(testEvtType)
	for i := range event.EventQueueSize + 5 {
		require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, i)))
	}
	// Overflow is dropped rather than blocking the publisher
	require.Len(t, ch, event.EventQueueSize)
	evt := testutil.RequireReceive(t, ch, time.Second, "first queued event")
	assert.Equal(t, 0, evt.Data)
	eb.Stop()
	for range ch {
	}
}

type recordingSubscriber struct {
	events []event.Event
	closed bool
}

func (r *recordingSubscriber) Deliver(_ context.Context, evt event.Event) error {
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSubscriber) Close() {
	r.closed = true
}

func TestEventBusRegisterSubscriberAndStop(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	sub := &recordingSubscriber{}
	eb.RegisterSubscriber(testEvtType, sub)
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, "x")))
	eb.Stop()
	assert.True(t, sub.closed)
	require.NoError(t, eb.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, "y")))
	assert.Len(t, sub.events, 1)
}

func TestEventBusMetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb1 := event.NewEventBus(reg, nil)
	eb2 := event.NewEventBus(reg, nil)
	defer eb1.Stop()
	defer eb2.Stop()
	eb1.SubscribeFunc(testEvtType, func(context.Context, event.Event) error {
		return errors.New("fail")
	})
	_ = eb1.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil))
	require.NoError(t, eb2.Publish(context.Background(), testEvtType, event.NewEvent(testEvtType, nil)))
	count, err := promtestutil.GatherAndCount(reg, "tally_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(
		t,
		float64(2),
		promtestutil.ToFloat64(newCounterProbe(reg)),
	)
}

// newCounterProbe returns the shared events counter for testEvtType
func newCounterProbe(reg *prometheus.Registry) prometheus.Counter {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_events_total",
			Help: "total events published",
		},
		[]string{"type"},
	)
	err := reg.Register(vec)
	var regErr prometheus.AlreadyRegisteredError
	if errors.As(err, &regErr) {
		vec = regErr.ExistingCollector.(*prometheus.CounterVec)
	}
	return vec.WithLabelValues(string(testEvtType))
}
