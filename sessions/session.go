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

package sessions

import (
	"fmt"
	"time"
)

// Session is one accepted stream connection. It exists from accept until the
// connection is closed, whether or not the peer ever subscribes.
type Session struct {
	id string

	// Slot is the index of the connection in the provider's slot table.
	Slot int

	// Remote is the peer's network address.
	Remote string

	Created time.Time

	// Topics the connection subscribed to, each listed once.
	Topics []string
}

func (this *Session) ID() string {
	return this.id
}

func (this *Session) String() string {
	return fmt.Sprintf("%s slot=%d remote=%s", this.id, this.Slot, this.Remote)
}

func (this *Session) AddTopic(topic string) {
	for _, t := range this.Topics {
		if topic == t {
			return
		}
	}

	this.Topics = append(this.Topics, topic)
}

func (this *Session) RemoveTopic(topic string) {
	for i, t := range this.Topics {
		if topic == t {
			this.Topics = append(this.Topics[:i], this.Topics[i+1:]...)
			return
		}
	}
}
