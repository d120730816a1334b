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
	"time"

	"github.com/eclesh/welford"
)

// SampleWindow is how many clock-delta samples we keep per peer
const SampleWindow = 120

// LivenessWindow is how long a peer stays live after its last announcement
const LivenessWindow = 5 * time.Second

// Peer holds everything this node knows about one other machine in the
// cluster: a sliding window of clock-delta samples and what the peer
// last reported about us.
type Peer struct {
	ip        uint32
	samples   []int64 // oldest first, at most SampleWindow entries
	lastSeen  int64   // local microseconds of the last sample
	peerDelta int64   // the delta the peer computed about this node
}

// NewPeer returns a Peer with an empty sample window
func NewPeer(ip uint32) *Peer {
	return &Peer{ip: ip, samples: make([]int64, 0, SampleWindow)}
}

// IP returns the peer's address as its numeric value
func (p *Peer) IP() uint32 {
	return p.ip
}

// AddSample records one clock-delta observation, localRX - remoteTX in
// microseconds, evicting the oldest sample once the window is full.
func (p *Peer) AddSample(localRX, remoteTX int64) {
	if len(p.samples) == SampleWindow {
		p.samples = p.samples[1:]
	}
	p.samples = append(p.samples, localRX-remoteTX)
	p.lastSeen = localRX
}

// TSDelta returns the minimum observed clock delta. Network jitter is
// one-sided, latency grows but has a floor, so the minimum is the
// tightest bound on the true offset plus that floor. Returns MaxInt64
// when no samples have been collected yet; callers gate on membership
// before using the value.
func (p *Peer) TSDelta() int64 {
	min := int64(math.MaxInt64)
	for _, s := range p.samples {
		if s < min {
			min = s
		}
	}
	return min
}

// IsLive reports whether the peer announced within the liveness window
func (p *Peer) IsLive(now int64) bool {
	return len(p.samples) > 0 && now-p.lastSeen < LivenessWindow.Microseconds()
}

// LastSeen returns the local microsecond timestamp of the last sample
func (p *Peer) LastSeen() int64 {
	return p.lastSeen
}

// SetPeerDelta records the delta the peer reported about this node
func (p *Peer) SetPeerDelta(td int64) {
	p.peerDelta = td
}

// PeerDelta returns the delta the peer last reported about this node
func (p *Peer) PeerDelta() int64 {
	return p.peerDelta
}

// Jitter returns mean and standard deviation of the sample window.
// Purely diagnostic, the delta estimate itself only ever uses the
// minimum.
func (p *Peer) Jitter() (mean, stddev float64) {
	s := welford.New()
	for _, v := range p.samples {
		s.Add(float64(v))
	}
	return s.Mean(), s.Stddev()
}
