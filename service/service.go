// Copyright (c) 2014 Dataence, LLC. All rights reserved.
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
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/surgemq/linemq/commons"
	"github.com/surgemq/linemq/message"
	"github.com/surgemq/linemq/sessions"
)

var (
	ErrInvalidConnectionType = errors.New("service: invalid connection type")
	ErrServiceClosed         = errors.New("service: connection closed")
	ErrSendQueueFull         = errors.New("service: send queue full")
	ErrNotConnected          = errors.New("service: client not connected")
)

var (
	gsvcid uint64 = 0
)

// service is one accepted stream connection. It is the connection's identity
// in the subscriber registry: subscriptions are bound to the *service, not
// to the remote address.
//
// The receiver goroutine does one bounded read per protocol unit and posts it
// to the hub. The sender goroutine drains the outgoing queue, so the hub
// never blocks on a slow peer.
type service struct {
	// The ID of this service, a number that's incremented for every new
	// connection.
	id uint64

	conn net.Conn

	// Set by the hub when the connection is admitted.
	sess *sessions.Session

	hub *hub

	// Outgoing payloads waiting for the sender.
	out chan []byte

	// Deadline for a single write to the peer.
	writeTimeout time.Duration

	// Whether this service is closed or not.
	closed int64

	// Quit signal for determining when this service should end. If channel is closed,
	// then exit.
	done chan struct{}

	log *zap.Logger
}

func newService(conn net.Conn, h *hub, queueSize int, writeTimeout time.Duration) *service {
	id := atomic.AddUint64(&gsvcid, 1)

	return &service{
		id:           id,
		conn:         conn,
		hub:          h,
		out:          make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		log: commons.Log.With(
			zap.Uint64("id", id),
			zap.String("remote", conn.RemoteAddr().String())),
	}
}

func (this *service) start() {
	// Receiver is responsible for reading from the connection and handing
	// each unit to the hub.
	go this.receiver()

	// Sender is responsible for writing queued payloads to the connection.
	go this.sender()
}

// stop closes the connection. The receiver notices and reports the close to
// the hub. It does not wait for the goroutines to exit.
func (this *service) stop() {
	if !atomic.CompareAndSwapInt64(&this.closed, 0, 1) {
		return
	}

	close(this.done)

	if err := this.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		this.log.Debug("closing connection", zap.Error(err))
	}
}

// Send queues payload for the peer. It never blocks: a full queue drops the
// payload.
func (this *service) Send(payload []byte) error {
	if this.isDone() {
		return ErrServiceClosed
	}

	select {
	case this.out <- payload:
		return nil

	default:
		return ErrSendQueueFull
	}
}

func (this *service) String() string {
	return fmt.Sprintf("%d/%s", this.id, this.conn.RemoteAddr())
}

func (this *service) receiver() {
	defer func() {
		// Let's recover from panic
		if r := recover(); r != nil {
			this.log.Error("recovering from panic", zap.Any("panic", r))
		}

		this.hub.post(event{etype: eventClose, svc: this})
	}()

	this.log.Debug("starting receiver")

	buf := make([]byte, message.MaxUnitSize-1)

	for {
		n, err := this.conn.Read(buf)

		if n > 0 {
			unit := make([]byte, n)
			copy(unit, buf[:n])

			if !this.hub.post(event{etype: eventUnit, ep: this, data: unit}) {
				return
			}
		}

		if err != nil {
			if err == io.EOF || this.isDone() {
				this.log.Debug("peer closed connection")
			} else {
				this.log.Error("reading from connection", zap.Error(err))
			}

			return
		}
	}
}

func (this *service) sender() {
	this.log.Debug("starting sender")

	for {
		select {
		case payload := <-this.out:
			if this.writeTimeout > 0 {
				this.conn.SetWriteDeadline(time.Now().Add(this.writeTimeout))
			}

			if _, err := this.conn.Write(payload); err != nil {
				// The receiver sees the closed socket and reports it to the hub.
				this.log.Debug("writing to connection", zap.Error(err))
				this.stop()
				return
			}

		case <-this.done:
			return
		}
	}
}

func (this *service) isDone() bool {
	select {
	case <-this.done:
		return true

	default:
	}

	return false
}
