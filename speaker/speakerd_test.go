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

package speaker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcslab/speakerd/control"
	"github.com/rcslab/speakerd/timesync"
)

// the daemon's stats must satisfy both services
var _ timesync.Stats = &Stats{}
var _ control.Stats = &Stats{}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(DefaultConfig())
	require.Error(t, err, "a daemon without a broadcast address cannot announce")
}

func TestNewWiresComponents(t *testing.T) {
	d, err := New(validConfig())
	require.NoError(t, err)
	require.NotNil(t, d.sync)
	require.NotNil(t, d.ctl)
	require.NotNil(t, d.stats)
}

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	// counters must be registered; double registration would panic
	s.IncAnnouncementsSent()
	s.IncPacketsReceived()
	s.IncPacketsCorrupt()
	s.IncUploads()
	s.IncQueries()
	s.IncPlays()
	s.IncBadFrames()
	s.SetLivePeers(3)
	s.SetPeerOffset("192.168.1.10", -3000000)
}
