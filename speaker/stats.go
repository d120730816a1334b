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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Stats exposes daemon counters on a /metrics endpoint. It implements
// both timesync.Stats and control.Stats.
type Stats struct {
	registry *prometheus.Registry

	announcementsSent prometheus.Counter
	packetsReceived   prometheus.Counter
	packetsCorrupt    prometheus.Counter
	uploads           prometheus.Counter
	queries           prometheus.Counter
	plays             prometheus.Counter
	badFrames         prometheus.Counter

	livePeers  prometheus.Gauge
	peerOffset *prometheus.GaugeVec
}

// NewStats returns Stats with all collectors registered
func NewStats() *Stats {
	s := &Stats{
		registry:          prometheus.NewRegistry(),
		announcementsSent: prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_announcements_sent_total", Help: "Announcements broadcast"}),
		packetsReceived:   prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_packets_received_total", Help: "Valid announcements ingested"}),
		packetsCorrupt:    prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_packets_corrupt_total", Help: "Announcements dropped as corrupt"}),
		uploads:           prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_uploads_total", Help: "Songs uploaded"}),
		queries:           prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_time_queries_total", Help: "Reference time queries answered"}),
		plays:             prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_plays_total", Help: "Playbacks started"}),
		badFrames:         prometheus.NewCounter(prometheus.CounterOpts{Name: "speakerd_bad_frames_total", Help: "Control frames with bad magic or command"}),
		livePeers:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "speakerd_live_peers", Help: "Peers announced within the liveness window"}),
		peerOffset:        prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "speakerd_peer_offset_us", Help: "Minimum observed clock delta per peer"}, []string{"peer"}),
	}
	s.registry.MustRegister(
		s.announcementsSent, s.packetsReceived, s.packetsCorrupt,
		s.uploads, s.queries, s.plays, s.badFrames,
		s.livePeers, s.peerOffset,
	)
	registerSysCollectors(s.registry)
	return s
}

// IncAnnouncementsSent implements timesync.Stats
func (s *Stats) IncAnnouncementsSent() { s.announcementsSent.Inc() }

// IncPacketsReceived implements timesync.Stats
func (s *Stats) IncPacketsReceived() { s.packetsReceived.Inc() }

// IncPacketsCorrupt implements timesync.Stats
func (s *Stats) IncPacketsCorrupt() { s.packetsCorrupt.Inc() }

// SetLivePeers implements timesync.Stats
func (s *Stats) SetLivePeers(n int) { s.livePeers.Set(float64(n)) }

// SetPeerOffset implements timesync.Stats
func (s *Stats) SetPeerOffset(ip string, td int64) { s.peerOffset.WithLabelValues(ip).Set(float64(td)) }

// IncUploads implements control.Stats
func (s *Stats) IncUploads() { s.uploads.Inc() }

// IncQueries implements control.Stats
func (s *Stats) IncQueries() { s.queries.Inc() }

// IncPlays implements control.Stats
func (s *Stats) IncPlays() { s.plays.Inc() }

// IncBadFrames implements control.Stats
func (s *Stats) IncBadFrames() { s.badFrames.Inc() }

// Serve runs the monitoring endpoint until the context is cancelled
func (s *Stats) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("monitoring: shutdown: %v", err)
		}
	}()
	log.Infof("monitoring: serving metrics on %s/metrics", srv.Addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
