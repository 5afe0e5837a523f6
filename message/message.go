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

// Package message implements the linemq line protocol.
//
// A protocol unit is whatever arrives in one stream read or one datagram, at
// most MaxUnitSize-1 bytes. There is no length prefix, no escaping and no
// reassembly across units. Three commands exist:
//
//   SUBSCRIBE <topic>      register interest in topic for the sending endpoint
//   UNSUBSCRIBE <topic>    drop that interest again
//   <topic>|<payload>      publish payload to every subscriber of topic
//
// Deliveries from the broker carry the raw payload with no envelope.
package message

import "fmt"

const (
	// MaxUnitSize is the size of the receive buffer for one protocol unit. One
	// byte is reserved, so at most MaxUnitSize-1 bytes are read per unit.
	MaxUnitSize = 1024

	// MaxTopicLen is the longest topic kept. Longer topics are truncated.
	MaxTopicLen = 49

	// Separator splits the topic from the payload in a publish line.
	Separator = '|'
)

var (
	subscribeCmd   = []byte("SUBSCRIBE")
	unsubscribeCmd = []byte("UNSUBSCRIBE")
)

// MessageType is the kind of command carried by a protocol unit.
type MessageType byte

const (
	// IGNORED: a unit that is neither a subscription command nor a well formed
	// publish line. It is dropped without feedback.
	IGNORED MessageType = iota

	// SUBSCRIBE: Client to broker. Register the topic for the sender.
	SUBSCRIBE

	// UNSUBSCRIBE: Client to broker. Remove the sender's registration.
	UNSUBSCRIBE

	// PUBLISH: Client to broker. Fan out the payload to the topic's subscribers.
	PUBLISH
)

func (this MessageType) String() string {
	return this.Name()
}

// Name returns the name of the message type.
func (this MessageType) Name() string {
	switch this {
	case IGNORED:
		return "IGNORED"
	case SUBSCRIBE:
		return "SUBSCRIBE"
	case UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case PUBLISH:
		return "PUBLISH"
	}

	return "UNKNOWN"
}

// Valid returns true if the type is one of the defined command types.
func (this MessageType) Valid() bool {
	return this <= PUBLISH
}

// Message is one parsed protocol unit. Topic and Payload alias the buffer
// handed to Parse and are only valid as long as that buffer is.
type Message struct {
	Type    MessageType
	Topic   []byte
	Payload []byte
}

func (this Message) String() string {
	switch this.Type {
	case PUBLISH:
		return fmt.Sprintf("%s topic=%q payload=%d bytes", this.Type, this.Topic, len(this.Payload))
	case SUBSCRIBE, UNSUBSCRIBE:
		return fmt.Sprintf("%s topic=%q", this.Type, this.Topic)
	}

	return this.Type.String()
}
