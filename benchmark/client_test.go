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

package benchmark

import (
	"flag"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surgemq/linemq/commons"
	"github.com/surgemq/linemq/service"
)

var (
	messages    int    = 10000
	publishers  int    = 1
	subscribers int    = 1
	size        int    = 64
	topic       string = "test"

	// How long a subscriber waits for the next payload before giving up.
	idle = 500 * time.Millisecond

	totalSent,
	totalRcvd,
	sentSince,
	rcvdSince int64

	statMu sync.Mutex
)

func init() {
	flag.IntVar(&messages, "messages", messages, "number of messages each publisher sends")
	flag.IntVar(&publishers, "publishers", publishers, "number of publishers to start (fan-in)")
	flag.IntVar(&subscribers, "subscribers", subscribers, "number of subscribers to start (fan-out)")
	flag.IntVar(&size, "size", size, "size of message payload to send")
}

func TestMain(m *testing.M) {
	if os.Getenv("LINEMQ_DEBUG") == "" {
		commons.SetLogger(zap.NewNop())
	}

	os.Exit(m.Run())
}

// startServer runs a broker with a datagram binding, so every publish and
// every delivery is exactly one datagram and can be counted.
func startServer(t testing.TB, maxSubs int) (*service.Server, string) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	svr := &service.Server{MaxPacketSubscribers: maxSubs}

	errc := make(chan error, 1)
	go func() { errc <- svr.ServePacket(conn) }()

	t.Cleanup(func() {
		svr.Close()
		<-errc
	})

	return svr, "udp://" + conn.LocalAddr().String()
}

func connectToServer(t testing.TB, uri string) *service.Client {
	c := &service.Client{}
	require.NoError(t, c.Connect(uri))

	return c
}

func resetStats() {
	statMu.Lock()
	defer statMu.Unlock()

	totalSent, totalRcvd, sentSince, rcvdSince = 0, 0, 0, 0
}

func addStats(sent, rcvd, since int64) {
	statMu.Lock()
	defer statMu.Unlock()

	totalSent += sent
	totalRcvd += rcvd

	if sent > 0 && since > sentSince {
		sentSince = since
	}

	if rcvd > 0 && since > rcvdSince {
		rcvdSince = since
	}
}

func logStats(t testing.TB, name string, want int64) {
	statMu.Lock()
	defer statMu.Unlock()

	t.Logf("%s: sent %d messages in %v, %d msgs/sec", name, totalSent, time.Duration(sentSince), rate(totalSent, sentSince))
	t.Logf("%s: received %d of %d messages in %v, %d msgs/sec", name, totalRcvd, want, time.Duration(rcvdSince), rate(totalRcvd, rcvdSince))
}

func rate(n, since int64) int {
	if since == 0 {
		return 0
	}

	return int(float64(n) / (float64(since) / float64(time.Second)))
}
