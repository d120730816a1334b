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
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultAnnounceInterval is how often we broadcast our view of the cluster
const DefaultAnnounceInterval = time.Second

// Stats is a minimal interface for recording what the service observes
type Stats interface {
	IncAnnouncementsSent()
	IncPacketsReceived()
	IncPacketsCorrupt()
	SetLivePeers(n int)
	SetPeerOffset(ip string, td int64)
}

// NoopStats is a Stats implementation that discards everything
type NoopStats struct{}

// IncAnnouncementsSent does nothing
func (NoopStats) IncAnnouncementsSent() {}

// IncPacketsReceived does nothing
func (NoopStats) IncPacketsReceived() {}

// IncPacketsCorrupt does nothing
func (NoopStats) IncPacketsCorrupt() {}

// SetLivePeers does nothing
func (NoopStats) SetLivePeers(int) {}

// SetPeerOffset does nothing
func (NoopStats) SetPeerOffset(string, int64) {}

// Config specifies time-sync service options
type Config struct {
	// BroadcastAddress is the local network's broadcast address, for
	// example 192.168.1.255. 255.255.255.255 also works but machines
	// with multiple NICs may not route it to the right network.
	BroadcastAddress string
	Port             int
	AnnounceInterval time.Duration
}

// Validate Config is sane
func (c *Config) Validate() error {
	ip := net.ParseIP(c.BroadcastAddress)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("broadcast address %q is not an IPv4 address", c.BroadcastAddress)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.AnnounceInterval <= 0 {
		return fmt.Errorf("announce interval must be positive")
	}
	return nil
}

// PeerInfo is a snapshot of one peer's state, safe to use without the
// cluster view lock.
type PeerInfo struct {
	IP        net.IP
	TSDelta   int64
	PeerDelta int64
	Live      bool
	LastSeen  int64
	Mean      float64
	Stddev    float64
}

// Service estimates clock offsets to every peer on the LAN and derives
// a cluster-wide reference time from them. The reference node is the
// live peer with the numerically smallest address; if this node's own
// address is smaller than every live peer's, its local clock is the
// reference.
type Service struct {
	cfg   Config
	stats Stats

	mu       sync.Mutex
	machines map[uint32]*Peer

	myIP uint32

	announceConn *net.UDPConn
	listenConn   *net.UDPConn

	// timeNow is swapped out in tests
	timeNow func() int64
}

// NewService returns a Service ready to Run
func NewService(cfg Config, stats Stats) *Service {
	if stats == nil {
		stats = NoopStats{}
	}
	return &Service{
		cfg:      cfg,
		stats:    stats,
		machines: map[uint32]*Peer{},
		timeNow:  machineTime,
	}
}

// machineTime returns local time in microseconds
func machineTime() int64 {
	return time.Now().UnixMicro()
}

// MyIP returns the local address discovered when the service started
func (s *Service) MyIP() net.IP {
	return Uint32ToIP(s.myIP)
}

// Run starts the announcer and listener loops and blocks until the
// context is cancelled or either loop fails. Sockets are closed on
// cancellation so both loops unblock within one read.
func (s *Service) Run(ctx context.Context) error {
	bcast := &net.UDPAddr{IP: net.ParseIP(s.cfg.BroadcastAddress), Port: s.cfg.Port}

	conn, err := announceConn(bcast)
	if err != nil {
		return fmt.Errorf("creating announce socket: %w", err)
	}
	s.announceConn = conn
	// The socket is connected to the broadcast destination, so its
	// bound source address is the one peers will see us under.
	s.myIP = IPToUint32(conn.LocalAddr().(*net.UDPAddr).IP)
	log.Infof("timesync: local address %s, announcing to %s every %v", Uint32ToIP(s.myIP), bcast, s.cfg.AnnounceInterval)

	lconn, err := ListenConn(s.cfg.Port)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating listen socket: %w", err)
	}
	s.listenConn = lconn

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		s.announceConn.Close()
		s.listenConn.Close()
		return ctx.Err()
	})
	eg.Go(func() error {
		return s.announcer(ctx, bcast)
	})
	eg.Go(func() error {
		return s.listener(ctx)
	})
	return eg.Wait()
}

// announcer broadcasts our view of the cluster once per interval.
// Send failures are logged and the loop continues.
func (s *Service) announcer(ctx context.Context, dst *net.UDPAddr) error {
	ticker := time.NewTicker(s.cfg.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		pkt := s.buildAnnouncement()
		if _, err := s.announceConn.Write(pkt.Bytes()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("timesync: announcement send: %v", err)
			continue
		}
		s.stats.IncAnnouncementsSent()
		log.Debugf("timesync: announcement sent, ts=%d", pkt.TS)
	}
}

// buildAnnouncement snapshots the cluster view into a packet. ts is the
// construction time, not the send time, which keeps peer estimates
// unbiased by send latency.
func (s *Service) buildAnnouncement() *Packet {
	pkt := &Packet{TS: s.timeNow()}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := 0
	for ip, m := range s.machines {
		if i == MaxMachines {
			log.Warningf("timesync: cluster view exceeds %d machines, truncating announcement", MaxMachines)
			break
		}
		pkt.Machines[i] = Machine{IP: ip, TD: m.TSDelta()}
		i++
	}
	return pkt
}

// listener ingests announcements until the socket is closed
func (s *Service) listener(ctx context.Context) error {
	buf := make([]byte, PacketSizeBytes+1)
	pkt := &Packet{}
	for {
		n, addr, err := s.listenConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("announcement read: %w", err)
		}
		src := IPToUint32(addr.IP)
		if src == s.myIP {
			// our own broadcast looped back
			continue
		}
		if err := FromBytes(buf[:n], pkt); err != nil {
			s.stats.IncPacketsCorrupt()
			log.Warningf("timesync: dropping packet from %s: %v", addr.IP, err)
			continue
		}
		s.processPacket(src, pkt)
		log.Debugf("timesync: announcement from %s", addr.IP)
	}
}

// processPacket records one clock-delta sample for the source peer and
// picks up what the peer reports about us.
func (s *Service) processPacket(src uint32, pkt *Packet) {
	rx := s.timeNow()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[src]
	if !ok {
		m = NewPeer(src)
		s.machines[src] = m
		log.Infof("timesync: new peer %s", Uint32ToIP(src))
	}
	m.AddSample(rx, pkt.TS)
	for _, e := range pkt.Machines {
		if e.IP != 0 && e.IP == s.myIP {
			m.SetPeerDelta(e.TD)
		}
	}
	s.stats.IncPacketsReceived()
	s.stats.SetPeerOffset(Uint32ToIP(src).String(), m.TSDelta())
}

// referenceDelta returns the delta to subtract from local time. Holding
// the lock, pick the live peer with the smallest address; when our own
// address is smaller than all of them, or nobody is live, the local
// clock is the reference and the delta is zero.
func (s *Service) referenceDelta(now int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.myIP
	var delta int64
	live := 0
	for ip, m := range s.machines {
		if !m.IsLive(now) {
			continue
		}
		live++
		if ref == 0 || ip < ref {
			ref = ip
			delta = m.TSDelta()
		}
	}
	s.stats.SetLivePeers(live)
	if ref == s.myIP {
		return 0
	}
	return delta
}

// GetTime returns the current time in the reference node's clock domain
func (s *Service) GetTime() int64 {
	now := s.timeNow()
	return now - s.referenceDelta(now)
}

// SleepUntil blocks until reference time ts. The deadline is computed
// once from the estimate at call time; a deadline already in the past
// returns immediately.
func (s *Service) SleepUntil(ctx context.Context, ts int64) error {
	delta := ts - s.GetTime()
	if delta <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delta) * time.Microsecond):
		return nil
	}
}

// Snapshot returns a copy of the per-peer state for monitoring
func (s *Service) Snapshot() []PeerInfo {
	now := s.timeNow()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PeerInfo, 0, len(s.machines))
	for ip, m := range s.machines {
		mean, stddev := m.Jitter()
		out = append(out, PeerInfo{
			IP:        Uint32ToIP(ip),
			TSDelta:   m.TSDelta(),
			PeerDelta: m.PeerDelta(),
			Live:      m.IsLive(now),
			LastSeen:  m.LastSeen(),
			Mean:      mean,
			Stddev:    stddev,
		})
	}
	return out
}

// Dump logs the current cluster view
func (s *Service) Dump() {
	for _, p := range s.Snapshot() {
		td := "-"
		if p.TSDelta != math.MaxInt64 {
			td = fmt.Sprintf("%d", p.TSDelta)
		}
		log.Infof("timesync: peer %s td=%s remote_td=%d live=%v jitter=%.0f±%.0fus", p.IP, td, p.PeerDelta, p.Live, p.Mean, p.Stddev)
	}
}
