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

// Package sessions tracks the peer connections accepted by a stream binding.
// Each admitted connection occupies one slot in a fixed-size table until it
// is closed; a binding never tracks more connections than it has slots.
package sessions

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrSessionsProviderNotFound = errors.New("sessions: session provider not found")
	ErrSessionNotFound          = errors.New("sessions: no session found")
	ErrSessionsFull             = errors.New("sessions: no free connection slot")

	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

const (
	// DefaultCapacity is the number of connection slots when none is given.
	DefaultCapacity = 20
)

type SessionsProvider interface {
	// New puts a session with the given id into the first free slot.
	New(id string) (*Session, error)
	Get(id string) (*Session, error)
	Del(id string)
	Count() int
	Close() error
}

// Provider creates a session store with the given number of slots.
type Provider func(capacity int) SessionsProvider

// Register makes a session provider available by the provided name.
// If a Register is called twice with the same name or if the provider is nil,
// it panics.
func Register(name string, provider Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()

	if provider == nil {
		panic("sessions: Register provider is nil")
	}

	if _, dup := providers[name]; dup {
		panic("sessions: Register called twice for provider " + name)
	}

	providers[name] = provider
}

func Unregister(name string) {
	providersMu.Lock()
	defer providersMu.Unlock()

	delete(providers, name)
}

type Manager struct {
	p SessionsProvider
}

func NewManager(providerName string, capacity int) (*Manager, error) {
	providersMu.RLock()
	p, ok := providers[providerName]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionsProviderNotFound, providerName)
	}

	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Manager{p: p(capacity)}, nil
}

// New creates a session for a connection from remote. It returns
// ErrSessionsFull when every slot is taken.
func (this *Manager) New(remote string) (*Session, error) {
	sess, err := this.p.New(uuid.NewString())
	if err != nil {
		return nil, err
	}

	sess.Remote = remote

	return sess, nil
}

func (this *Manager) Get(id string) (*Session, error) {
	return this.p.Get(id)
}

func (this *Manager) Del(id string) {
	this.p.Del(id)
}

func (this *Manager) Count() int {
	return this.p.Count()
}

func (this *Manager) Close() error {
	return this.p.Close()
}
