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

package sessions

import (
	"fmt"
	"sync"
	"time"
)

var _ SessionsProvider = (*memProvider)(nil)

func init() {
	Register("mem", func(capacity int) SessionsProvider {
		return NewMemProvider(capacity)
	})
}

// memProvider keeps sessions in a fixed slot table. New always takes the
// lowest free slot.
type memProvider struct {
	slots []*Session
	st    map[string]int
	mu    sync.RWMutex
}

func NewMemProvider(capacity int) *memProvider {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &memProvider{
		slots: make([]*Session, capacity),
		st:    make(map[string]int, capacity),
	}
}

func (this *memProvider) New(id string) (*Session, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if _, dup := this.st[id]; dup {
		return nil, fmt.Errorf("sessions: duplicate session id %s", id)
	}

	for i, s := range this.slots {
		if s != nil {
			continue
		}

		sess := &Session{id: id, Slot: i, Created: time.Now()}
		this.slots[i] = sess
		this.st[id] = i

		return sess, nil
	}

	return nil, ErrSessionsFull
}

func (this *memProvider) Get(id string) (*Session, error) {
	this.mu.RLock()
	defer this.mu.RUnlock()

	i, ok := this.st[id]
	if !ok {
		return nil, fmt.Errorf("%w for key %s", ErrSessionNotFound, id)
	}

	return this.slots[i], nil
}

func (this *memProvider) Del(id string) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if i, ok := this.st[id]; ok {
		this.slots[i] = nil
		delete(this.st, id)
	}
}

func (this *memProvider) Count() int {
	this.mu.RLock()
	defer this.mu.RUnlock()

	return len(this.st)
}

func (this *memProvider) Close() error {
	this.mu.Lock()
	defer this.mu.Unlock()

	for i := range this.slots {
		this.slots[i] = nil
	}

	this.st = make(map[string]int, len(this.slots))

	return nil
}
