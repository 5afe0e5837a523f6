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
	"net/netip"
)

// packetEndpoint is a datagram subscriber: the socket the binding receives
// on plus the sender's address. It is a comparable value, so two datagrams
// from the same address map to the same subscriber.
type packetEndpoint struct {
	conn *net.UDPConn
	addr netip.AddrPort
}

func newPacketEndpoint(conn *net.UDPConn, addr netip.AddrPort) packetEndpoint {
	return packetEndpoint{
		conn: conn,
		addr: netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()),
	}
}

// Send delivers payload as one datagram. It does not block on the peer.
func (this packetEndpoint) Send(payload []byte) error {
	_, err := this.conn.WriteToUDPAddrPort(payload, this.addr)
	return err
}

func (this packetEndpoint) String() string {
	return this.addr.String()
}
