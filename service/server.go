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
	"net/url"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/surgemq/linemq/commons"
	"github.com/surgemq/linemq/message"
	"github.com/surgemq/linemq/sessions"
	"github.com/surgemq/linemq/topics"
)

var ErrServerClosed = errors.New("service: server closed")

const (
	DefaultMaxConnections       = 20
	DefaultMaxStreamSubscribers = 20
	DefaultMaxPacketSubscribers = 50
	DefaultSendQueueSize        = 64
	DefaultWriteTimeout         = 5 * time.Second
	DefaultSessionsProvider     = "mem"
	DefaultTopicsProvider       = "mem"
)

// Server is a linemq broker. Every binding started with ListenAndServe,
// Serve or ServePacket gets its own hub and subscriber registry; bindings do
// not share subscriptions.
type Server struct {
	// The maximum number of stream connections tracked at once. A connection
	// accepted while all slots are taken is closed immediately.
	// If not set then default to 20.
	MaxConnections int

	// The registry capacity of a stream binding.
	// If not set then default to 20.
	MaxStreamSubscribers int

	// The registry capacity of a datagram binding.
	// If not set then default to 50.
	MaxPacketSubscribers int

	// StreamDedup makes a repeated SUBSCRIBE for the same topic on the same
	// stream connection a no-op, as it always is for datagram bindings. By
	// default every SUBSCRIBE on a connection adds a record.
	StreamDedup bool

	// The number of payloads queued per stream connection before further
	// deliveries to it are dropped.
	// If not set then default to 64.
	SendQueueSize int

	// The deadline for writing one payload to a stream connection. A peer
	// that misses it is disconnected.
	// If not set then default to 5 seconds.
	WriteTimeout time.Duration

	// SessionsProvider is the store that keeps track of stream connections.
	// If not set then default to "mem".
	SessionsProvider string

	// TopicsProvider is the registry that keeps all the subscriptions.
	// If not set then default to "mem".
	TopicsProvider string

	mu      sync.Mutex
	quit    chan struct{}
	closed  bool
	closers []io.Closer
	hubs    []*hub
}

// ListenAndServe binds the uri and serves it until the server is closed.
// Supported schemes are tcp, tcp4, tcp6, udp, udp4 and udp6, e.g.
// "tcp://:8080" or "udp://127.0.0.1:8080". Binding failures are returned
// right away.
func (this *Server) ListenAndServe(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		ln, err := net.Listen(u.Scheme, u.Host)
		if err != nil {
			return err
		}

		return this.Serve(ln)

	case "udp", "udp4", "udp6":
		addr, err := net.ResolveUDPAddr(u.Scheme, u.Host)
		if err != nil {
			return err
		}

		conn, err := net.ListenUDP(u.Scheme, addr)
		if err != nil {
			return err
		}

		return this.ServePacket(conn)
	}

	return fmt.Errorf("%w: %q", ErrInvalidConnectionType, u.Scheme)
}

// Serve accepts stream connections on ln until the server is closed, in which
// case it returns nil. Accept failures are logged and retried.
func (this *Server) Serve(ln net.Listener) error {
	h, err := this.newHub(ln.Addr().Network(), true)
	if err != nil {
		ln.Close()
		return err
	}

	if err := this.track(ln, h); err != nil {
		ln.Close()
		return err
	}

	defer h.stop()
	defer ln.Close()

	commons.Log.Info("server is ready", zap.Stringer("addr", ln.Addr()), zap.String("transport", h.transport))

	var tempDelay time.Duration // how long to sleep on accept failure

	for {
		conn, err := ln.Accept()
		if err != nil {
			if this.isClosed() {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return err
			}

			tempDelay = nextDelay(tempDelay)

			commons.Log.Error("accept error",
				zap.Stringer("addr", ln.Addr()),
				zap.Error(err),
				zap.Duration("retry", tempDelay))

			this.pause(tempDelay)
			continue
		}

		tempDelay = 0

		svc := newService(conn, h, this.SendQueueSize, this.WriteTimeout)
		if !h.post(event{etype: eventOpen, svc: svc}) {
			conn.Close()
		}
	}
}

// ServePacket receives datagrams on conn until the server is closed, in which
// case it returns nil. Every datagram is one protocol unit; the sender
// address is the subscriber identity. Receive errors are logged and the loop
// goes on.
func (this *Server) ServePacket(conn *net.UDPConn) error {
	h, err := this.newHub(conn.LocalAddr().Network(), false)
	if err != nil {
		conn.Close()
		return err
	}

	if err := this.track(conn, h); err != nil {
		conn.Close()
		return err
	}

	defer h.stop()
	defer conn.Close()

	commons.Log.Info("server is ready", zap.Stringer("addr", conn.LocalAddr()), zap.String("transport", h.transport))

	buf := make([]byte, message.MaxUnitSize)

	var tempDelay time.Duration // how long to sleep on receive failure

	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf[:message.MaxUnitSize-1])
		if err != nil {
			if this.isClosed() {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return err
			}

			tempDelay = nextDelay(tempDelay)

			commons.Log.Error("receive error",
				zap.Stringer("addr", conn.LocalAddr()),
				zap.Error(err),
				zap.Duration("retry", tempDelay))

			this.pause(tempDelay)
			continue
		}

		tempDelay = 0

		unit := make([]byte, n)
		copy(unit, buf[:n])

		if !h.post(event{etype: eventUnit, ep: newPacketEndpoint(conn, addr), data: unit}) {
			return nil
		}
	}
}

// Close stops every binding: listeners and sockets are closed, tracked
// connections are dropped and the Serve calls return nil.
func (this *Server) Close() error {
	this.mu.Lock()
	if this.closed {
		this.mu.Unlock()
		return nil
	}

	this.closed = true
	if this.quit != nil {
		close(this.quit)
	}

	closers, hubs := this.closers, this.hubs
	this.closers, this.hubs = nil, nil
	this.mu.Unlock()

	var err error

	for _, c := range closers {
		if cerr := c.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}

	for _, h := range hubs {
		h.stop()
	}

	return err
}

// Subscriptions returns the number of subscriber records across all bindings.
func (this *Server) Subscriptions() int {
	this.mu.Lock()
	defer this.mu.Unlock()

	n := 0
	for _, h := range this.hubs {
		n += h.topicsMgr.Count()
	}

	return n
}

// Connections returns the number of stream connections currently tracked.
func (this *Server) Connections() int {
	this.mu.Lock()
	defer this.mu.Unlock()

	n := 0
	for _, h := range this.hubs {
		if h.sessMgr != nil {
			n += h.sessMgr.Count()
		}
	}

	return n
}

func (this *Server) newHub(transport string, stream bool) (*hub, error) {
	if err := this.checkConfiguration(); err != nil {
		return nil, err
	}

	opts := topics.Options{
		Capacity: this.MaxPacketSubscribers,
		Dedup:    true,
	}

	if stream {
		opts = topics.Options{
			Capacity: this.MaxStreamSubscribers,
			Dedup:    this.StreamDedup,
		}
	}

	topicsMgr, err := topics.NewManager(this.TopicsProvider, opts)
	if err != nil {
		return nil, err
	}

	var sessMgr *sessions.Manager

	if stream {
		sessMgr, err = sessions.NewManager(this.SessionsProvider, this.MaxConnections)
		if err != nil {
			topicsMgr.Close()
			return nil, err
		}
	}

	return newHub(transport, topicsMgr, sessMgr), nil
}

// track registers a binding so Close can stop it, and starts its hub.
func (this *Server) track(c io.Closer, h *hub) error {
	this.mu.Lock()
	defer this.mu.Unlock()

	if this.closed {
		// Never started, so the registries are released right here.
		h.shutdown()
		return ErrServerClosed
	}

	this.closers = append(this.closers, c)
	this.hubs = append(this.hubs, h)

	h.start()

	return nil
}

// nextDelay returns the wait before retrying after another transient
// failure: 5ms first, then doubling up to 1s.
func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}

	d *= 2
	if max := 1 * time.Second; d > max {
		d = max
	}

	return d
}

// pause waits for d, or less if the server is closed meanwhile.
func (this *Server) pause(d time.Duration) {
	this.mu.Lock()
	quit := this.quit
	this.mu.Unlock()

	select {
	case <-time.After(d):
	case <-quit:
	}
}

func (this *Server) isClosed() bool {
	this.mu.Lock()
	defer this.mu.Unlock()

	return this.closed
}

func (this *Server) checkConfiguration() error {
	this.mu.Lock()
	defer this.mu.Unlock()

	if this.quit == nil {
		this.quit = make(chan struct{})
		if this.closed {
			close(this.quit)
		}
	}

	if this.MaxConnections <= 0 {
		this.MaxConnections = DefaultMaxConnections
	}

	if this.MaxStreamSubscribers <= 0 {
		this.MaxStreamSubscribers = DefaultMaxStreamSubscribers
	}

	if this.MaxPacketSubscribers <= 0 {
		this.MaxPacketSubscribers = DefaultMaxPacketSubscribers
	}

	if this.SendQueueSize <= 0 {
		this.SendQueueSize = DefaultSendQueueSize
	}

	if this.WriteTimeout <= 0 {
		this.WriteTimeout = DefaultWriteTimeout
	}

	if this.SessionsProvider == "" {
		this.SessionsProvider = DefaultSessionsProvider
	}

	if this.TopicsProvider == "" {
		this.TopicsProvider = DefaultTopicsProvider
	}

	return nil
}
