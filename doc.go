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

// Linemq is a small topic based publish/subscribe broker speaking a line
// protocol over TCP and UDP, with an optional websocket bridge.
//
// The protocol has three kinds of units. Every stream read and every datagram
// is exactly one unit; nothing is ever reassembled.
//
//   SUBSCRIBE <topic>      register the sender for topic
//   UNSUBSCRIBE <topic>    drop the sender's records for topic
//   <topic>|<payload>      deliver payload verbatim to every subscriber of topic
//
// Anything else is dropped without feedback. Topics are opaque byte strings
// of at most 49 bytes, matched exactly; there are no wildcards.
//
// The two bindings are independent brokers. On a stream binding the
// subscriber is the connection, and all of its records go away when it
// closes. On a datagram binding the subscriber is the sender address, and a
// repeated SUBSCRIBE from it is a no-op.
//
// The primary package that's of interest is package service. It provides the
// Server and Client in a library form.
//
// A quick example of how to use linemq:
//   func main() {
//       // Create a new server
//       svr := &service.Server{
//           MaxConnections:       20,    // stream connections tracked at once
//           MaxStreamSubscribers: 20,    // records on the stream binding
//           MaxPacketSubscribers: 50,    // records on the datagram binding
//           SessionsProvider:     "mem", // keeps connections in memory
//           TopicsProvider:       "mem", // keeps topic subscriptions in memory
//       }
//
//       go svr.ListenAndServe("udp://:8080")
//
//       // Listen and serve connections at :8080
//       err := svr.ListenAndServe("tcp://:8080")
//       fmt.Printf("%v", err)
//   }
package linemq
