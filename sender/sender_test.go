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

package sender

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcslab/speakerd/control"
	"github.com/rcslab/speakerd/timesync"
)

// freeUDPPort grabs an ephemeral UDP port number
func freeUDPPort(t *testing.T) int {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestNewDiscovery(t *testing.T) {
	src := net.ParseIP("192.168.1.10").To4()
	pkt := &timesync.Packet{TS: 1}
	pkt.Machines[0] = timesync.Machine{IP: timesync.IPToUint32(net.ParseIP("192.168.1.20")), TD: 5}
	pkt.Machines[1] = timesync.Machine{IP: timesync.IPToUint32(src), TD: 0} // announcer lists us back
	// slot 2 left zero

	d := newDiscovery(src, pkt)
	require.Len(t, d.Peers, 2, "zero slots and duplicates are skipped")
	require.True(t, d.Peers[0].Equal(src), "the announcement source is a speaker too")
	require.True(t, d.Peers[1].Equal(net.ParseIP("192.168.1.20")))
}

func TestDiscover(t *testing.T) {
	port := freeUDPPort(t)

	go func() {
		conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", itoa(port)))
		if err != nil {
			return
		}
		defer conn.Close()
		// corrupt first, valid second; discovery must skip the former
		for i := 0; i < 5; i++ {
			conn.Write([]byte{1, 2, 3})
			pkt := &timesync.Packet{TS: 42}
			pkt.Machines[0] = timesync.Machine{IP: timesync.IPToUint32(net.ParseIP("10.1.2.3")), TD: 7}
			conn.Write(pkt.Bytes())
			time.Sleep(50 * time.Millisecond)
		}
	}()

	d, err := Discover(port, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(42), d.Packet.TS)
	require.Len(t, d.Peers, 2)
}

func TestDiscoverTimeout(t *testing.T) {
	_, err := Discover(freeUDPPort(t), 50*time.Millisecond)
	require.Error(t, err, "silence means no cluster")
}

// fakeSpeaker answers the control protocol on 127.0.0.1 and records
// what it was told.
type fakeSpeaker struct {
	ln net.Listener

	mu       sync.Mutex
	uploaded []byte
	startAt  int64
	queried  int
}

func newFakeSpeaker(t *testing.T) *fakeSpeaker {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSpeaker{ln: ln}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeSpeaker) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSpeaker) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				h, err := control.ReadHeader(conn)
				if err != nil {
					return
				}
				switch h.Cmd {
				case control.CmdUpload:
					buf := make([]byte, h.Arg)
					if _, err := io.ReadFull(conn, buf); err != nil {
						return
					}
					f.mu.Lock()
					f.uploaded = buf
					f.mu.Unlock()
				case control.CmdQueryTime:
					f.mu.Lock()
					f.queried++
					f.mu.Unlock()
					if err := control.WriteTimestamp(conn, 1000000); err != nil {
						return
					}
				case control.CmdStartAt:
					ts, err := control.ReadTimestamp(conn)
					if err != nil {
						return
					}
					f.mu.Lock()
					f.startAt = ts
					f.mu.Unlock()
				}
			}
		}()
	}
}

func TestPlaySkipsDeadSpeakers(t *testing.T) {
	speaker := newFakeSpeaker(t)
	tsPort := freeUDPPort(t)

	cfg := DefaultConfig()
	cfg.TimesyncPort = tsPort
	cfg.ControlPort = speaker.port()
	cfg.Headroom = 5 * time.Second
	cfg.DiscoverTimeout = 5 * time.Second

	// announce a live speaker on 127.0.0.1 and a dead one on
	// 127.0.0.2 where nothing listens
	go func() {
		conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", itoa(tsPort)))
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 10; i++ {
			pkt := &timesync.Packet{TS: 1}
			pkt.Machines[0] = timesync.Machine{IP: timesync.IPToUint32(net.ParseIP("127.0.0.2")), TD: 0}
			conn.Write(pkt.Bytes())
			time.Sleep(50 * time.Millisecond)
		}
	}()

	song := bytes.Repeat([]byte{0xab}, 1024)
	s := NewSender(cfg)
	require.NoError(t, s.Play(song), "a dead speaker is skipped, not fatal")

	// the start command is written right before the connection closes;
	// give the fake a moment to process it
	require.Eventually(t, func() bool {
		speaker.mu.Lock()
		defer speaker.mu.Unlock()
		return speaker.startAt != 0
	}, 5*time.Second, 10*time.Millisecond)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	require.Equal(t, song, speaker.uploaded)
	require.Equal(t, 1, speaker.queried, "only the first live speaker is queried")
	require.Equal(t, int64(1000000+5000000), speaker.startAt, "start is the queried time plus the headroom")
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
