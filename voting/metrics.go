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

package voting

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type votingMetrics struct {
	instances         prometheus.Gauge
	votesPlaced       prometheus.Counter
	votesRemoved      prometheus.Counter
	roundsStarted     *prometheus.CounterVec
	roundsEnded       *prometheus.CounterVec
	broadcastFailures prometheus.Counter
	voters            *prometheus.GaugeVec
}

// newVotingMetrics registers the voting metrics. Directories sharing a
// registerer share the collectors
func newVotingMetrics(promRegistry prometheus.Registerer) *votingMetrics {
	if promRegistry == nil {
		return nil
	}
	return &votingMetrics{
		instances: register(
			promRegistry,
			prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "tally_instances",
				Help: "current voting instances",
			}),
		),
		votesPlaced: register(
			promRegistry,
			prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tally_votes_placed_total",
				Help: "total votes placed",
			}),
		),
		votesRemoved: register(
			promRegistry,
			prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tally_votes_removed_total",
				Help: "total votes removed",
			}),
		),
		roundsStarted: register(
			promRegistry,
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_rounds_started_total",
					Help: "total rounds started",
				},
				[]string{"rule"},
			),
		),
		roundsEnded: register(
			promRegistry,
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_rounds_ended_total",
					Help: "total rounds ended",
				},
				[]string{"outcome"},
			),
		),
		broadcastFailures: register(
			promRegistry,
			prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tally_broadcast_failures_total",
				Help: "total broadcast deliveries which failed",
			}),
		),
		voters: register(
			promRegistry,
			prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "tally_voters",
					Help: "current voters",
				},
				[]string{"instance"},
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

func (m *votingMetrics) setInstances(count int) {
	if m == nil {
		return
	}
	m.instances.Set(float64(count))
}

func (m *votingMetrics) votePlaced() {
	if m == nil {
		return
	}
	m.votesPlaced.Inc()
}

func (m *votingMetrics) voteRemoved() {
	if m == nil {
		return
	}
	m.votesRemoved.Inc()
}

func (m *votingMetrics) roundStarted(kind RuleKind) {
	if m == nil {
		return
	}
	m.roundsStarted.WithLabelValues(string(kind)).Inc()
}

func (m *votingMetrics) roundEnded(outcome string) {
	if m == nil {
		return
	}
	m.roundsEnded.WithLabelValues(outcome).Inc()
}

func (m *votingMetrics) broadcastFailed() {
	if m == nil {
		return
	}
	m.broadcastFailures.Inc()
}

func (m *votingMetrics) setVoters(instanceId string, count int) {
	if m == nil {
		return
	}
	m.voters.WithLabelValues(instanceId).Set(float64(count))
}

func (m *votingMetrics) deleteVoters(instanceId string) {
	if m == nil {
		return
	}
	m.voters.DeleteLabelValues(instanceId)
}
