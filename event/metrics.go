// Copyright 2025 Blink Labs Software
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
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	eventsTotal    *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
	deliveryErrors *prometheus.CounterVec
}

// initMetrics registers the bus metrics. Every voting instance owns a bus,
// so collectors already registered by a sibling bus are reused.
func (e *EventBus) initMetrics(promRegistry prometheus.Registerer) {
	e.metrics = &eventMetrics{
		eventsTotal: register(
			promRegistry,
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_events_total",
					Help: "total events published",
				},
				[]string{"type"},
			),
		),
		subscribers: register(
			promRegistry,
			prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "tally_event_subscribers",
					Help: "current event subscribers",
				},
				[]string{"type", "kind"},
			),
		),
		deliveryErrors: register(
			promRegistry,
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_event_delivery_errors_total",
					Help: "total event deliveries which returned an error",
				},
				[]string{"type", "kind"},
			),
		),
	}
}

func register[T prometheus.Collector](
	promRegistry prometheus.Registerer,
	collector T,
) T {
	if err := promRegistry.Register(collector); err != nil {
		var regErr prometheus.AlreadyRegisteredError
		if errors.As(err, &regErr) {
			if existing, ok := regErr.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}
