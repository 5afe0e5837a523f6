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

package topics

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/surgemq/linemq/message"
)

const (
	// DefaultCapacity is used when Options.Capacity is not set.
	DefaultCapacity = 20
)

func init() {
	Register("mem", func(opts Options) (Topics, error) {
		return NewMemTopics(opts), nil
	})
}

type record struct {
	topic string
	sub   interface{}
}

// MemTopics is a flat, insertion-ordered list of (topic, subscriber) records.
// Every operation scans the whole list, which is fine for the tens of peers a
// binding holds. Capacity is enforced on the total number of records.
type MemTopics struct {
	mu      sync.RWMutex
	records []record
	cap     int
	dedup   bool
	closed  bool
}

var _ Topics = (*MemTopics)(nil)

func NewMemTopics(opts Options) *MemTopics {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}

	return &MemTopics{
		records: make([]record, 0, opts.Capacity),
		cap:     opts.Capacity,
		dedup:   opts.Dedup,
	}
}

func (this *MemTopics) Subscribe(topic []byte, sub interface{}) error {
	if err := validTopic(topic); err != nil {
		return err
	}

	if sub == nil {
		return ErrInvalidSubscriber
	}

	this.mu.Lock()
	defer this.mu.Unlock()

	if this.closed {
		return ErrRegistryClosed
	}

	if this.dedup {
		for i := range this.records {
			if this.records[i].topic == string(topic) && equal(this.records[i].sub, sub) {
				return nil
			}
		}
	}

	if len(this.records) >= this.cap {
		return ErrCapacityExceeded
	}

	this.records = append(this.records, record{topic: string(topic), sub: sub})

	return nil
}

func (this *MemTopics) Unsubscribe(topic []byte, sub interface{}) error {
	this.mu.Lock()
	defer this.mu.Unlock()

	n := this.filter(func(r *record) bool {
		return r.topic == string(topic) && equal(r.sub, sub)
	})

	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotSubscribed, topic)
	}

	return nil
}

func (this *MemTopics) Remove(sub interface{}) int {
	this.mu.Lock()
	defer this.mu.Unlock()

	return this.filter(func(r *record) bool {
		return equal(r.sub, sub)
	})
}

// Returned values will be invalidated by the next Subscribers call
func (this *MemTopics) Subscribers(topic []byte, subs *[]interface{}) error {
	this.mu.RLock()
	defer this.mu.RUnlock()

	*subs = (*subs)[0:0]

	if this.closed {
		return ErrRegistryClosed
	}

	for i := range this.records {
		if this.records[i].topic == string(topic) {
			*subs = append(*subs, this.records[i].sub)
		}
	}

	return nil
}

func (this *MemTopics) Count() int {
	this.mu.RLock()
	defer this.mu.RUnlock()

	return len(this.records)
}

func (this *MemTopics) Close() error {
	this.mu.Lock()
	defer this.mu.Unlock()

	this.records = nil
	this.closed = true

	return nil
}

// filter drops the records matching drop, keeping the order of the rest, and
// returns how many were dropped. Caller holds the write lock.
func (this *MemTopics) filter(drop func(*record) bool) int {
	kept := this.records[:0]

	for i := range this.records {
		if !drop(&this.records[i]) {
			kept = append(kept, this.records[i])
		}
	}

	n := len(this.records) - len(kept)

	// Clear the tail so removed subscribers can be collected.
	for i := len(kept); i < len(this.records); i++ {
		this.records[i] = record{}
	}

	this.records = kept

	return n
}

func validTopic(topic []byte) error {
	if len(topic) == 0 || len(topic) > message.MaxTopicLen {
		return fmt.Errorf("%w: length %d not in [1, %d]", ErrInvalidTopic, len(topic), message.MaxTopicLen)
	}

	return nil
}

// equal compares two subscribers without panicking on uncomparable values.
func equal(k1, k2 interface{}) bool {
	if k1 == nil || k2 == nil {
		return k1 == k2
	}

	t := reflect.TypeOf(k1)
	if t != reflect.TypeOf(k2) || !t.Comparable() {
		return false
	}

	return k1 == k2
}
