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

// Package topics keeps track of which endpoints subscribed to which topics.
// - A topic is an opaque byte string of at most message.MaxTopicLen bytes.
//   There are no levels and no wildcards; matching is byte for byte.
// - A subscriber is any comparable value identifying an endpoint. The broker
//   uses the connection's service for stream bindings and the remote address
//   for datagram bindings.
// - The registry is bounded. Subscribing beyond capacity fails with
//   ErrCapacityExceeded and leaves the registry untouched.
package topics

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrCapacityExceeded  = errors.New("topics: registry capacity exceeded")
	ErrInvalidTopic      = errors.New("topics: invalid topic")
	ErrInvalidSubscriber = errors.New("topics: invalid subscriber")
	ErrNotSubscribed     = errors.New("topics: no subscription found")
	ErrProviderNotFound  = errors.New("topics: provider not found")
	ErrRegistryClosed    = errors.New("topics: registry closed")
)

// Topics is the subscriber registry of one transport binding.
type Topics interface {
	// Subscribe registers sub for topic. It returns ErrCapacityExceeded if the
	// registry is full. With dedup enabled, subscribing an existing
	// (sub, topic) pair succeeds without adding a record.
	Subscribe(topic []byte, sub interface{}) error

	// Unsubscribe removes every record of sub for topic.
	Unsubscribe(topic []byte, sub interface{}) error

	// Remove removes every record of sub, whatever the topic, and returns the
	// number of records removed.
	Remove(sub interface{}) int

	// Subscribers appends the subscribers of topic to *subs in the order they
	// subscribed. *subs is reset first.
	Subscribers(topic []byte, subs *[]interface{}) error

	// Count returns the total number of records.
	Count() int

	Close() error
}

// Options configure a registry created by a provider.
type Options struct {
	// Capacity is the maximum number of records in the registry.
	Capacity int

	// Dedup makes Subscribe idempotent for an existing (subscriber, topic) pair.
	Dedup bool
}

// Provider creates a registry.
type Provider func(opts Options) (Topics, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// Register makes a topics provider available by the provided name.
// If a Register is called twice with the same name or if the provider is nil,
// it panics.
func Register(name string, provider Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()

	if provider == nil {
		panic("topics: Register provider is nil")
	}

	if _, dup := providers[name]; dup {
		panic("topics: Register called twice for provider " + name)
	}

	providers[name] = provider
}

func Unregister(name string) {
	providersMu.Lock()
	defer providersMu.Unlock()

	delete(providers, name)
}

// NewManager returns a new registry from the named provider.
func NewManager(providerName string, opts Options) (Topics, error) {
	providersMu.RLock()
	p, ok := providers[providerName]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, providerName)
	}

	return p(opts)
}
