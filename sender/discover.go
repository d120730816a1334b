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

/*
Package sender implements the controller: it listens for one cluster
announcement to learn the speaker set, uploads the song to every
speaker, picks a shared start instant in the reference clock domain
and fans the start command out.
*/
package sender

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rcslab/speakerd/timesync"
)

// Discovery is the peer set learned from one announcement
type Discovery struct {
	// Source is the speaker whose announcement we happened to catch
	Source net.IP
	// Peers are all machines the announcement listed, source included
	Peers []net.IP
	// Packet is the raw announcement, kept for diagnostics
	Packet *timesync.Packet
}

// Discover blocks until one valid announcement arrives on the
// time-sync port and returns the cluster membership it carries.
// Corrupt or short datagrams are dropped and the wait continues.
func Discover(port int, timeout time.Duration) (*Discovery, error) {
	conn, err := timesync.ListenConn(port)
	if err != nil {
		return nil, fmt.Errorf("binding discovery socket: %w", err)
	}
	defer conn.Close()
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, timesync.PacketSizeBytes+1)
	pkt := &timesync.Packet{}
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("waiting for an announcement: %w", err)
		}
		if err := timesync.FromBytes(buf[:n], pkt); err != nil {
			log.Warningf("discovery: dropping packet from %s: %v", addr.IP, err)
			continue
		}
		return newDiscovery(addr.IP, pkt), nil
	}
}

// newDiscovery folds the announcement's machine list and its source
// address into one deduplicated peer set. The source belongs in the
// set: a speaker does not list itself in its own announcement.
func newDiscovery(src net.IP, pkt *timesync.Packet) *Discovery {
	d := &Discovery{Source: src, Packet: pkt}
	seen := map[uint32]bool{timesync.IPToUint32(src): true}
	d.Peers = append(d.Peers, src)
	for _, m := range pkt.Machines {
		if m.IP == 0 || seen[m.IP] {
			continue
		}
		seen[m.IP] = true
		d.Peers = append(d.Peers, timesync.Uint32ToIP(m.IP))
	}
	return d
}
