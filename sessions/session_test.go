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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionTopics(t *testing.T) {
	sess := &Session{}

	sess.AddTopic("sports")
	sess.AddTopic("news")
	sess.AddTopic("sports")
	require.Equal(t, []string{"sports", "news"}, sess.Topics)

	sess.RemoveTopic("sports")
	require.Equal(t, []string{"news"}, sess.Topics)

	sess.RemoveTopic("weather")
	require.Equal(t, []string{"news"}, sess.Topics)
}

func TestMemProviderSlots(t *testing.T) {
	p := NewMemProvider(2)

	s1, err := p.New("a")
	require.NoError(t, err)
	require.Equal(t, 0, s1.Slot)

	s2, err := p.New("b")
	require.NoError(t, err)
	require.Equal(t, 1, s2.Slot)

	_, err = p.New("c")
	require.ErrorIs(t, err, ErrSessionsFull)
	require.Equal(t, 2, p.Count())

	// The freed slot is reused first.
	p.Del("a")
	s3, err := p.New("c")
	require.NoError(t, err)
	require.Equal(t, 0, s3.Slot)

	got, err := p.Get("c")
	require.NoError(t, err)
	require.Equal(t, s3, got)

	_, err = p.Get("a")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = p.New("c")
	require.Error(t, err)
}

func TestMemProviderClose(t *testing.T) {
	p := NewMemProvider(1)

	_, err := p.New("a")
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.Equal(t, 0, p.Count())

	_, err = p.New("b")
	require.NoError(t, err)
}

func TestManager(t *testing.T) {
	mgr, err := NewManager("mem", 1)
	require.NoError(t, err)

	sess, err := mgr.New("127.0.0.1:5000")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())
	require.Equal(t, "127.0.0.1:5000", sess.Remote)

	got, err := mgr.Get(sess.ID())
	require.NoError(t, err)
	require.Equal(t, sess, got)

	_, err = mgr.New("127.0.0.1:5001")
	require.ErrorIs(t, err, ErrSessionsFull)

	mgr.Del(sess.ID())
	require.Equal(t, 0, mgr.Count())

	_, err = NewManager("redis", 1)
	require.ErrorIs(t, err, ErrSessionsProviderNotFound)
}

func TestManagerDefaultCapacity(t *testing.T) {
	mgr, err := NewManager("mem", 0)
	require.NoError(t, err)

	for i := 0; i < DefaultCapacity; i++ {
		_, err := mgr.New("peer")
		require.NoError(t, err)
	}

	_, err = mgr.New("peer")
	require.ErrorIs(t, err, ErrSessionsFull)
}
