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
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/surgemq/linemq/commons"
	"github.com/surgemq/linemq/message"
	"github.com/surgemq/linemq/sessions"
	"github.com/surgemq/linemq/topics"
)

const (
	// Queue size for the hub's event channel
	defaultEventQueueSize = 256
)

// Endpoint is where the router delivers payloads. Stream bindings use the
// connection's service, datagram bindings a packetEndpoint.
type Endpoint interface {
	Send(payload []byte) error
	String() string
}

type eventType byte

const (
	eventUnit eventType = iota
	eventOpen
	eventClose
)

type event struct {
	etype eventType

	// Sender of a unit.
	ep   Endpoint
	data []byte

	// Connection being opened or closed.
	svc *service
}

// hub owns the broker state of one transport binding: the subscriber registry
// and, for stream bindings, the connection table. Transport goroutines only
// post events; every read and write of that state happens on the hub's own
// goroutine, so no other locking discipline is needed.
//
// All events of one connection travel through the same channel, so a close
// is never handled before the units that connection sent earlier.
type hub struct {
	transport string

	topicsMgr topics.Topics

	// nil for datagram bindings
	sessMgr *sessions.Manager

	// Admitted stream connections.
	svcs map[*service]struct{}

	events  chan event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Reused for every publish.
	subs []interface{}

	log *zap.Logger
}

func newHub(transport string, topicsMgr topics.Topics, sessMgr *sessions.Manager) *hub {
	return &hub{
		transport: transport,
		topicsMgr: topicsMgr,
		sessMgr:   sessMgr,
		svcs:      make(map[*service]struct{}),
		events:    make(chan event, defaultEventQueueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		log:       commons.Log.With(zap.String("transport", transport)),
	}
}

func (this *hub) start() {
	go this.run()
}

// stop ends the hub, closes every connection it tracks and waits until the
// hub goroutine has exited. It is safe to call more than once.
func (this *hub) stop() {
	this.once.Do(func() {
		close(this.done)
	})

	<-this.stopped
}

// post hands an event to the hub. It returns false once the hub is stopped.
func (this *hub) post(e event) bool {
	select {
	case <-this.done:
		return false

	default:
	}

	select {
	case this.events <- e:
		return true

	case <-this.done:
		return false
	}
}

func (this *hub) run() {
	defer close(this.stopped)

	this.log.Debug("hub started")

	for {
		select {
		case e := <-this.events:
			this.dispatch(e)

		case <-this.done:
			this.shutdown()
			return
		}
	}
}

func (this *hub) dispatch(e event) {
	switch e.etype {
	case eventOpen:
		this.open(e.svc)

	case eventClose:
		this.close(e.svc)

	case eventUnit:
		unitsReceived.WithLabelValues(this.transport).Inc()
		this.processIncoming(e.ep, e.data)
	}
}

// open admits a freshly accepted connection into the first free slot. With no
// slot left the connection is closed right away; the protocol has no frame to
// tell the peer why.
func (this *hub) open(svc *service) {
	sess, err := this.sessMgr.New(svc.conn.RemoteAddr().String())
	if err != nil {
		dropped.WithLabelValues(this.transport, dropConnections).Inc()
		this.log.Warn("rejecting connection",
			zap.String("remote", svc.conn.RemoteAddr().String()),
			zap.Error(err))
		svc.stop()
		return
	}

	svc.sess = sess
	this.svcs[svc] = struct{}{}
	connections.WithLabelValues(this.transport).Inc()

	svc.start()

	this.log.Info("connection established",
		zap.Uint64("id", svc.id),
		zap.String("session", sess.ID()),
		zap.Int("slot", sess.Slot),
		zap.String("remote", sess.Remote))
}

// close releases the connection's slot and purges its subscriptions.
func (this *hub) close(svc *service) {
	if _, ok := this.svcs[svc]; !ok {
		return
	}

	delete(this.svcs, svc)

	n := this.topicsMgr.Remove(svc)
	subscriptions.WithLabelValues(this.transport).Sub(float64(n))

	if _, err := this.sessMgr.Get(svc.sess.ID()); err != nil {
		this.log.Error("closing untracked connection", zap.Uint64("id", svc.id), zap.Error(err))
	} else {
		this.sessMgr.Del(svc.sess.ID())
		connections.WithLabelValues(this.transport).Dec()
	}

	svc.stop()

	this.log.Info("connection closed",
		zap.Uint64("id", svc.id),
		zap.String("session", svc.sess.ID()),
		zap.Strings("topics", svc.sess.Topics),
		zap.Int("purged", n))
}

func (this *hub) shutdown() {
	for svc := range this.svcs {
		svc.stop()
	}

	connections.WithLabelValues(this.transport).Sub(float64(len(this.svcs)))
	subscriptions.WithLabelValues(this.transport).Sub(float64(this.topicsMgr.Count()))

	this.svcs = make(map[*service]struct{})

	if err := this.topicsMgr.Close(); err != nil {
		this.log.Error("closing topics", zap.Error(err))
	}

	if this.sessMgr != nil {
		if err := this.sessMgr.Close(); err != nil {
			this.log.Error("closing sessions", zap.Error(err))
		}
	}

	this.log.Debug("hub stopped")
}

func (this *hub) processIncoming(ep Endpoint, data []byte) {
	if svc, ok := ep.(*service); ok {
		if _, admitted := this.svcs[svc]; !admitted {
			return
		}
	}

	msg := message.Parse(data)

	switch msg.Type {
	case message.SUBSCRIBE:
		this.subscribe(ep, msg.Topic)

	case message.UNSUBSCRIBE:
		this.unsubscribe(ep, msg.Topic)

	case message.PUBLISH:
		this.publish(msg.Topic, msg.Payload)

	default:
		// Malformed publish lines are dropped without feedback.
		dropped.WithLabelValues(this.transport, dropMalformed).Inc()
		this.log.Debug("dropping malformed unit",
			zap.String("from", ep.String()),
			zap.Int("bytes", len(data)))
	}
}

func (this *hub) subscribe(ep Endpoint, topic []byte) {
	before := this.topicsMgr.Count()

	if err := this.topicsMgr.Subscribe(topic, ep); err != nil {
		switch {
		case errors.Is(err, topics.ErrCapacityExceeded):
			dropped.WithLabelValues(this.transport, dropCapacity).Inc()
			this.log.Warn("subscription dropped",
				zap.String("from", ep.String()),
				zap.ByteString("topic", topic),
				zap.Error(err))

		case errors.Is(err, topics.ErrInvalidTopic):
			dropped.WithLabelValues(this.transport, dropTopic).Inc()
			this.log.Debug("subscription dropped",
				zap.String("from", ep.String()),
				zap.Error(err))

		default:
			this.log.Error("subscribing",
				zap.String("from", ep.String()),
				zap.ByteString("topic", topic),
				zap.Error(err))
		}

		return
	}

	added := this.topicsMgr.Count() - before
	if added == 0 {
		this.log.Debug("duplicate subscription ignored",
			zap.String("from", ep.String()),
			zap.ByteString("topic", topic))
		return
	}

	subscriptions.WithLabelValues(this.transport).Add(float64(added))

	if svc, ok := ep.(*service); ok {
		svc.sess.AddTopic(string(topic))
	}

	this.log.Info("new subscriber",
		zap.String("from", ep.String()),
		zap.ByteString("topic", topic))
}

func (this *hub) unsubscribe(ep Endpoint, topic []byte) {
	before := this.topicsMgr.Count()

	if err := this.topicsMgr.Unsubscribe(topic, ep); err != nil {
		this.log.Debug("unsubscribe ignored",
			zap.String("from", ep.String()),
			zap.Error(err))
		return
	}

	subscriptions.WithLabelValues(this.transport).Sub(float64(before - this.topicsMgr.Count()))

	if svc, ok := ep.(*service); ok {
		svc.sess.RemoveTopic(string(topic))
	}

	this.log.Info("subscriber removed",
		zap.String("from", ep.String()),
		zap.ByteString("topic", topic))
}

// publish delivers payload verbatim to every subscriber of topic and returns
// the number of successful sends. A failing subscriber never stops delivery
// to the others, and nothing is reported back to the publisher.
func (this *hub) publish(topic, payload []byte) int {
	publishes.WithLabelValues(this.transport).Inc()

	if err := this.topicsMgr.Subscribers(topic, &this.subs); err != nil {
		this.log.Error("looking up subscribers", zap.ByteString("topic", topic), zap.Error(err))
		return 0
	}

	this.log.Debug("message received",
		zap.ByteString("topic", topic),
		zap.Int("bytes", len(payload)),
		zap.Int("subscribers", len(this.subs)))

	n := 0

	for _, s := range this.subs {
		ep, ok := s.(Endpoint)
		if !ok {
			continue
		}

		if err := ep.Send(payload); err != nil {
			deliveries.WithLabelValues(this.transport, resultError).Inc()
			if errors.Is(err, ErrSendQueueFull) {
				dropped.WithLabelValues(this.transport, dropQueueFull).Inc()
			}

			this.log.Debug("delivery failed",
				zap.String("to", ep.String()),
				zap.ByteString("topic", topic),
				zap.Error(err))
			continue
		}

		deliveries.WithLabelValues(this.transport, resultOK).Inc()
		n++
	}

	// Don't pin closed connections until the next publish.
	clear(this.subs)

	return n
}
