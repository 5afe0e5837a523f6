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

package message

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrInvalidTopic   = errors.New("message: invalid topic")
	ErrInvalidPayload = errors.New("message: payload contains NUL byte")
	ErrUnitTooLarge   = errors.New("message: unit exceeds maximum size")
)

// Parse interprets one protocol unit. It never fails: anything that is not a
// subscription command and has no separator comes back as IGNORED. The unit
// ends at the first NUL byte, if any.
//
// Topics longer than MaxTopicLen are truncated, for subscriptions and
// publishes alike, so that both sides of a match see the same key.
func Parse(buf []byte) Message {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}

	if len(buf) > MaxUnitSize-1 {
		buf = buf[:MaxUnitSize-1]
	}

	if rest, ok := command(buf, subscribeCmd); ok {
		return subscription(SUBSCRIBE, rest)
	}

	if rest, ok := command(buf, unsubscribeCmd); ok {
		return subscription(UNSUBSCRIBE, rest)
	}

	i := bytes.IndexByte(buf, Separator)
	if i < 0 {
		return Message{Type: IGNORED}
	}

	return Message{
		Type:    PUBLISH,
		Topic:   truncate(buf[:i]),
		Payload: buf[i+1:],
	}
}

// command reports whether buf starts with cmd followed by whitespace, and
// returns what follows cmd.
func command(buf, cmd []byte) ([]byte, bool) {
	if len(buf) <= len(cmd) || !bytes.HasPrefix(buf, cmd) || !isSpace(buf[len(cmd)]) {
		return nil, false
	}

	return buf[len(cmd):], true
}

func subscription(mtype MessageType, rest []byte) Message {
	topic := nextToken(rest)
	if len(topic) == 0 {
		return Message{Type: IGNORED}
	}

	return Message{Type: mtype, Topic: truncate(topic)}
}

// nextToken returns the first whitespace delimited token in buf.
func nextToken(buf []byte) []byte {
	start := 0
	for start < len(buf) && isSpace(buf[start]) {
		start++
	}

	end := start
	for end < len(buf) && !isSpace(buf[end]) {
		end++
	}

	return buf[start:end]
}

func truncate(topic []byte) []byte {
	if len(topic) > MaxTopicLen {
		return topic[:MaxTopicLen]
	}

	return topic
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}

	return false
}

// ValidTopic checks that topic can be sent in a subscription command and will
// be matched byte for byte by the broker.
func ValidTopic(topic []byte) error {
	if len(topic) == 0 || len(topic) > MaxTopicLen {
		return fmt.Errorf("%w: length %d not in [1, %d]", ErrInvalidTopic, len(topic), MaxTopicLen)
	}

	for _, c := range topic {
		if isSpace(c) || c == Separator || c == 0 {
			return fmt.Errorf("%w: %q contains whitespace, NUL or %q", ErrInvalidTopic, topic, Separator)
		}
	}

	return nil
}

// EncodeSubscribe returns the SUBSCRIBE command for topic.
func EncodeSubscribe(topic string) ([]byte, error) {
	return encodeSubscription(subscribeCmd, topic)
}

// EncodeUnsubscribe returns the UNSUBSCRIBE command for topic.
func EncodeUnsubscribe(topic string) ([]byte, error) {
	return encodeSubscription(unsubscribeCmd, topic)
}

func encodeSubscription(cmd []byte, topic string) ([]byte, error) {
	if err := ValidTopic([]byte(topic)); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(cmd)+1+len(topic))
	buf = append(buf, cmd...)
	buf = append(buf, ' ')
	buf = append(buf, topic...)

	return buf, nil
}

// EncodePublish returns the publish line for topic and payload. The result
// must fit into a single unit since the broker never reassembles.
func EncodePublish(topic string, payload []byte) ([]byte, error) {
	if err := ValidTopic([]byte(topic)); err != nil {
		return nil, err
	}

	if bytes.IndexByte(payload, 0) >= 0 {
		return nil, ErrInvalidPayload
	}

	total := len(topic) + 1 + len(payload)
	if total > MaxUnitSize-1 {
		return nil, fmt.Errorf("%w: %d > %d", ErrUnitTooLarge, total, MaxUnitSize-1)
	}

	buf := make([]byte, 0, total)
	buf = append(buf, topic...)
	buf = append(buf, Separator)
	buf = append(buf, payload...)

	return buf, nil
}
