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
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surgemq/linemq/commons"
)

const (
	// How long a test waits for something that should happen.
	waitFor = 2 * time.Second

	// How long a test waits for something that should not happen.
	quietFor = 150 * time.Millisecond

	tick = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	if os.Getenv("LINEMQ_DEBUG") == "" {
		commons.SetLogger(zap.NewNop())
	}

	os.Exit(m.Run())
}

// startServer serves svr on an ephemeral loopback port for scheme ("tcp" or
// "udp") and returns the uri to dial. The server is closed when the test
// ends, and Serve must then return.
func startServer(t testing.TB, svr *Server, scheme string) string {
	errc := make(chan error, 1)

	var uri string

	switch scheme {
	case "tcp":
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		uri = "tcp://" + ln.Addr().String()
		go func() { errc <- svr.Serve(ln) }()

	case "udp":
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)

		uri = "udp://" + conn.LocalAddr().String()
		go func() { errc <- svr.ServePacket(conn) }()

	default:
		t.Fatalf("unknown scheme %q", scheme)
	}

	t.Cleanup(func() {
		require.NoError(t, svr.Close())

		select {
		case err := <-errc:
			if !errors.Is(err, ErrServerClosed) {
				require.NoError(t, err)
			}

		case <-time.After(waitFor):
			t.Errorf("%s binding did not stop", scheme)
		}
	})

	return uri
}

func connect(t testing.TB, uri string) *Client {
	c := &Client{}
	require.NoError(t, c.Connect(uri))

	t.Cleanup(func() { c.Disconnect() })

	return c
}

// subscribe sends a subscription and waits until the broker holds one more
// record than before.
func subscribe(t testing.TB, svr *Server, c *Client, topic string) {
	n := svr.Subscriptions()

	require.NoError(t, c.Subscribe(topic))
	require.Eventually(t, func() bool { return svr.Subscriptions() == n+1 }, waitFor, tick,
		"subscription to %q never registered", topic)
}

// publish sends a publish line and waits until the broker has handled it.
func publish(t testing.TB, c *Client, transport, topic, payload string) {
	n := testutil.ToFloat64(publishes.WithLabelValues(transport))

	require.NoError(t, c.Publish(topic, []byte(payload)))
	waitCounter(t, publishes.WithLabelValues(transport), n+1)
}

// waitCounter waits until counter reaches at least want.
func waitCounter(t testing.TB, c prometheus.Collector, want float64) {
	require.Eventually(t, func() bool { return testutil.ToFloat64(c) >= want }, waitFor, tick)
}

func expectPayload(t testing.TB, c *Client, want string) {
	payload, err := c.Receive(waitFor)
	require.NoError(t, err)
	require.Equal(t, want, string(payload))
}

func expectNothing(t testing.TB, c *Client) {
	payload, err := c.Receive(quietFor)
	require.Error(t, err, "unexpected payload %q", payload)

	var nerr net.Error
	require.True(t, errors.As(err, &nerr) && nerr.Timeout(), "expected timeout, got %v", err)
}

// send writes one raw unit and waits until the hub has picked it up.
func send(t testing.TB, c *Client, transport, raw string) {
	n := testutil.ToFloat64(unitsReceived.WithLabelValues(transport))

	require.NoError(t, c.Send([]byte(raw)))
	waitCounter(t, unitsReceived.WithLabelValues(transport), n+1)
}

// flush waits until every unit the hub has picked up so far is fully
// processed, by sending a malformed marker behind them.
func flush(t testing.TB, c *Client, transport string) {
	n := testutil.ToFloat64(dropped.WithLabelValues(transport, dropMalformed))

	send(t, c, transport, "flush")
	waitCounter(t, dropped.WithLabelValues(transport, dropMalformed), n+1)
}
