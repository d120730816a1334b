/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package timesync

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerEmpty(t *testing.T) {
	p := NewPeer(1)
	require.Equal(t, int64(math.MaxInt64), p.TSDelta(), "empty window has no estimate")
	require.False(t, p.IsLive(0), "peer without samples is never live")
}

func TestPeerMinSelection(t *testing.T) {
	p := NewPeer(1)
	// remote clock 3s ahead of ours, one-way latency between 1.1s
	// and 2s; each sample is latency minus the offset
	p.AddSample(8500000, 10000000)  // latency 1.5s
	p.AddSample(18100000, 20000000) // latency 1.1s
	p.AddSample(29000000, 30000000) // latency 2.0s
	require.Equal(t, int64(-1900000), p.TSDelta(), "estimate is the lowest-latency observation")
}

func TestPeerWindowBound(t *testing.T) {
	p := NewPeer(1)
	// the very first sample is the global minimum; it must be evicted
	// once the window wraps
	p.AddSample(-1000000, 0)
	for i := int64(0); i < SampleWindow; i++ {
		p.AddSample(i+100, i)
	}
	require.Equal(t, int64(100), p.TSDelta(), "oldest sample evicted once the window is full")
}

func TestPeerLiveness(t *testing.T) {
	p := NewPeer(1)
	p.AddSample(1000, 0)
	require.True(t, p.IsLive(1000))
	require.True(t, p.IsLive(1000+LivenessWindow.Microseconds()-1))
	require.False(t, p.IsLive(1000+LivenessWindow.Microseconds()))
	require.Equal(t, int64(1000), p.LastSeen())
}

func TestPeerLastSeenAdvances(t *testing.T) {
	p := NewPeer(1)
	p.AddSample(1000, 0)
	p.AddSample(2000, 0)
	require.Equal(t, int64(2000), p.LastSeen())
}

func TestPeerDelta(t *testing.T) {
	p := NewPeer(1)
	p.SetPeerDelta(-42)
	require.Equal(t, int64(-42), p.PeerDelta())
}

func TestPeerJitter(t *testing.T) {
	p := NewPeer(1)
	p.AddSample(10, 0)
	p.AddSample(20, 0)
	p.AddSample(30, 0)
	mean, stddev := p.Jitter()
	require.InDelta(t, 20.0, mean, 0.001)
	require.InDelta(t, 10.0, stddev, 0.001)
}
