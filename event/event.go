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

package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const EventQueueSize = 20

type EventType string

type EventSubscriberId int

// EventHandlerFunc is invoked inline by Publish. A returned error is
// reported back to the publisher.
type EventHandlerFunc func(context.Context, Event) error

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// Subscriber is a delivery abstraction that allows the EventBus to deliver
// events to inline handlers and to queue-backed subscribers via the same
// interface.
// Implementations must ensure Close() is idempotent and safe to call multiple times.
type Subscriber interface {
	Deliver(context.Context, Event) error
	Close()
}

type subscription struct {
	sub Subscriber
	id  EventSubscriberId
}

// EventBus delivers events synchronously. Subscribers for an event type run
// in the order they subscribed, on the publisher's goroutine, before Publish
// returns.
type EventBus struct {
	subscribers map[EventType][]subscription
	metrics     *eventMetrics
	Logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
}

// NewEventBus creates a new EventBus
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType][]subscription),
		Logger:      logger,
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	return e
}

// funcSubscriber runs a handler inline
type funcSubscriber struct {
	handler EventHandlerFunc
}

func (f *funcSubscriber) Deliver(ctx context.Context, evt Event) error {
	return f.handler(ctx, evt)
}

func (f *funcSubscriber) Close() {}

// channelSubscriber queues events on a buffered channel. Deliver never
// blocks: events are dropped when the buffer is full.
type channelSubscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int) *channelSubscriber {
	return &channelSubscriber{
		ch: make(chan Event, buffer),
	}
}

func (c *channelSubscriber) Deliver(_ context.Context, evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- evt:
	default:
	}
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Subscribe allows a consumer to receive events of a particular type via a channel.
// This is the queue-based delivery option; voting reactions use SubscribeFunc
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	chSub := newChannelSubscriber(EventQueueSize)
	subId := e.register(eventType, chSub)
	return subId, chSub.ch
}

// SubscribeFunc registers a handler which is called inline for every event
// of the given type
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	return e.register(eventType, &funcSubscriber{handler: handlerFunc})
}

// RegisterSubscriber allows external adapters to register with the
// EventBus. It returns the assigned subscriber id.
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.register(eventType, sub)
}

func (e *EventBus) register(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	e.subscribers[eventType] = append(
		e.subscribers[eventType],
		subscription{id: subId, sub: sub},
	)
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(sub)).
			Inc()
	}
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var subToClose Subscriber
	subs := e.subscribers[eventType]
	for idx, item := range subs {
		if item.id != subId {
			continue
		}
		subToClose = item.sub
		e.subscribers[eventType] = append(
			subs[:idx:idx],
			subs[idx+1:]...,
		)
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
		if e.metrics != nil {
			e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(item.sub)).
				Dec()
		}
		break
	}
	e.mu.Unlock()

	if subToClose != nil {
		subToClose.Close()
	}
}

// Publish delivers an event to every subscriber of its type and returns the
// combined errors of the subscribers which failed. A failing subscriber does
// not prevent delivery to the remaining subscribers.
func (e *EventBus) Publish(
	ctx context.Context,
	eventType EventType,
	evt Event,
) error {
	// Copy the subscriber list so handlers may subscribe or unsubscribe
	e.mu.RLock()
	subList := make([]subscription, len(e.subscribers[eventType]))
	copy(subList, e.subscribers[eventType])
	e.mu.RUnlock()
	var errs []error
	for _, item := range subList {
		var deliverErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					deliverErr = fmt.Errorf("subscriber deliver panic: %v", r)
				}
			}()
			deliverErr = item.sub.Deliver(ctx, evt)
		}()
		if deliverErr != nil {
			if e.metrics != nil {
				e.metrics.deliveryErrors.WithLabelValues(string(eventType), subscriberKind(item.sub)).
					Inc()
			}
			e.Logger.Debug(
				"event delivery error",
				"type", eventType,
				"err", deliverErr,
			)
			errs = append(errs, deliverErr)
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
	return errors.Join(errs...)
}

// Stop closes all subscribers and clears the subscribers map.
// The EventBus can still be reused after Stop() is called.
func (e *EventBus) Stop() {
	e.mu.Lock()
	subsCopy := e.subscribers
	e.subscribers = make(map[EventType][]subscription)
	e.mu.Unlock()

	// Close subscribers outside of lock
	for eventType, evtTypeSubs := range subsCopy {
		for _, item := range evtTypeSubs {
			item.sub.Close()
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(item.sub)).
					Dec()
			}
		}
	}
}

func subscriberKind(sub Subscriber) string {
	switch sub.(type) {
	case *funcSubscriber:
		return "inline"
	case *channelSubscriber:
		return "queue"
	default:
		return "external"
	}
}
