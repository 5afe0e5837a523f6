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
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/surgemq/linemq/message"
)

const (
	// The number of seconds to wait for a dial before failing.
	DefaultConnectTimeout = 2
)

// Client is a linemq peer on either a stream or a datagram binding. Every
// method writes exactly one protocol unit, so a Client is also what the
// examples and benchmarks drive the broker with.
//
// On a stream binding consecutive units written back to back may reach the
// broker as a single read. Callers that need them handled separately must
// space them out.
type Client struct {
	// The number of seconds to wait for the connection before failing.
	// If not set then default to 2 seconds.
	ConnectTimeout int

	mu   sync.Mutex
	conn net.Conn
	buf  []byte
}

// Connect dials the broker at uri, e.g. "tcp://127.0.0.1:8080" or
// "udp://127.0.0.1:8080".
func (this *Client) Connect(uri string) error {
	this.checkConfiguration()

	u, err := url.Parse(uri)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6", "udp", "udp4", "udp6":
	default:
		return ErrInvalidConnectionType
	}

	conn, err := net.DialTimeout(u.Scheme, u.Host, time.Second*time.Duration(this.ConnectTimeout))
	if err != nil {
		return err
	}

	this.mu.Lock()
	defer this.mu.Unlock()

	if this.conn != nil {
		this.conn.Close()
	}

	this.conn = conn
	this.buf = make([]byte, message.MaxUnitSize-1)

	return nil
}

// Subscribe registers this client for topic.
func (this *Client) Subscribe(topic string) error {
	buf, err := message.EncodeSubscribe(topic)
	if err != nil {
		return err
	}

	return this.Send(buf)
}

// Unsubscribe removes every subscription of this client for topic.
func (this *Client) Unsubscribe(topic string) error {
	buf, err := message.EncodeUnsubscribe(topic)
	if err != nil {
		return err
	}

	return this.Send(buf)
}

// Publish sends payload to every subscriber of topic. The broker gives no
// acknowledgement.
func (this *Client) Publish(topic string, payload []byte) error {
	buf, err := message.EncodePublish(topic, payload)
	if err != nil {
		return err
	}

	return this.Send(buf)
}

// Send writes buf as is, as a single unit.
func (this *Client) Send(buf []byte) error {
	conn, err := this.getConn()
	if err != nil {
		return err
	}

	_, err = conn.Write(buf)
	return err
}

// Receive waits up to timeout for the next payload delivered by the broker.
// A zero timeout waits forever.
func (this *Client) Receive(timeout time.Duration) ([]byte, error) {
	conn, err := this.getConn()
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		conn.SetReadDeadline(time.Time{})
	}

	n, err := conn.Read(this.buf)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	copy(payload, this.buf[:n])

	return payload, nil
}

// LocalAddr returns the address the broker sees this client as.
func (this *Client) LocalAddr() net.Addr {
	conn, err := this.getConn()
	if err != nil {
		return nil
	}

	return conn.LocalAddr()
}

// Disconnect closes the connection. On a stream binding the broker then
// drops every subscription this client held.
func (this *Client) Disconnect() error {
	this.mu.Lock()
	defer this.mu.Unlock()

	if this.conn == nil {
		return ErrNotConnected
	}

	err := this.conn.Close()
	this.conn = nil

	return err
}

func (this *Client) getConn() (net.Conn, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if this.conn == nil {
		return nil, ErrNotConnected
	}

	return this.conn, nil
}

func (this *Client) checkConfiguration() {
	if this.ConnectTimeout == 0 {
		this.ConnectTimeout = DefaultConnectTimeout
	}
}
