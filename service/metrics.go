// Copyright (c) 2014 The SurgeMQ Authors. All rights reserved.
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

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropMalformed   = "malformed"
	dropCapacity    = "capacity"
	dropConnections = "connections"
	dropTopic       = "topic"
	dropQueueFull   = "queue_full"

	resultOK    = "ok"
	resultError = "error"
)

var (
	unitsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemq",
		Name:      "units_received_total",
		Help:      "Protocol units received, per transport.",
	}, []string{"transport"})

	publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemq",
		Name:      "publishes_total",
		Help:      "Publish commands processed, per transport.",
	}, []string{"transport"})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemq",
		Name:      "deliveries_total",
		Help:      "Payload sends to subscribers, per transport and result.",
	}, []string{"transport", "result"})

	dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemq",
		Name:      "dropped_total",
		Help:      "Units, subscriptions or connections dropped without feedback, per reason.",
	}, []string{"transport", "reason"})

	subscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "linemq",
		Name:      "subscriptions",
		Help:      "Subscriber records currently registered.",
	}, []string{"transport"})

	connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "linemq",
		Name:      "connections",
		Help:      "Stream connections currently tracked.",
	}, []string{"transport"})
)
