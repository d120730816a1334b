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
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rcslab/speakerd/audio"
	"github.com/rcslab/speakerd/control"
	"github.com/rcslab/speakerd/timesync"
)

// dumpInterval is how often the cluster view is logged
const dumpInterval = 10 * time.Second

// Daemon is a running speaker: time-sync service, control server and
// monitoring, all sharing one lifetime.
type Daemon struct {
	cfg   *Config
	stats *Stats
	sync  *timesync.Service
	ctl   *control.Server
}

// New assembles a Daemon from a validated config
func New(cfg *Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config is invalid: %w", err)
	}
	d := &Daemon{cfg: cfg, stats: NewStats()}
	d.sync = timesync.NewService(timesync.Config{
		BroadcastAddress: cfg.BroadcastAddress,
		Port:             cfg.TimesyncPort,
		AnnounceInterval: cfg.AnnounceInterval,
	}, d.stats)
	d.ctl = control.NewServer(
		control.Config{Port: cfg.ControlPort, MaxSongSize: cfg.MaxSongSize},
		d.sync,
		d.newSink,
		d.stats,
	)
	return d, nil
}

// newSink opens the configured PCM output. Called on every start
// command so a flaky device fails the one playback, not the daemon.
func (d *Daemon) newSink() (audio.Sink, error) {
	var (
		out audio.PCMWriter
		err error
	)
	switch d.cfg.Output {
	case OutputPortAudio:
		out, err = audio.OpenPortAudio()
	default:
		out, err = audio.OpenOSS(d.cfg.Device)
	}
	if err != nil {
		return nil, err
	}
	return audio.NewStreamSink(audio.NewADTSDecoder, out), nil
}

// Run blocks until the context is cancelled or a component fails
func (d *Daemon) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return d.sync.Run(ctx)
	})
	eg.Go(func() error {
		return d.ctl.Run(ctx)
	})
	if d.cfg.MonitoringPort != 0 {
		eg.Go(func() error {
			return d.stats.Serve(ctx, d.cfg.MonitoringPort)
		})
	}
	eg.Go(func() error {
		ticker := time.NewTicker(dumpInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				d.sync.Dump()
			}
		}
	})
	log.Infof("speakerd running: timesync on udp/%d, control on tcp/%d", d.cfg.TimesyncPort, d.cfg.ControlPort)
	return eg.Wait()
}
