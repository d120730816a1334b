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
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/rcslab/speakerd/audio"
	"github.com/rcslab/speakerd/control"
	"github.com/rcslab/speakerd/timesync"
)

// DefaultHeadroom is added to the queried reference time to produce
// the shared start instant. It has to exceed the worst-case time to
// fan the start command out to every speaker plus the clock-offset
// error; five seconds is generous for a LAN of 32 nodes.
const DefaultHeadroom = 5 * time.Second

// DefaultDiscoverTimeout bounds how long we wait for an announcement;
// speakers announce once a second, so ten seconds of silence means
// nobody is out there.
const DefaultDiscoverTimeout = 10 * time.Second

var okString = color.GreenString("[ OK ]")
var failString = color.RedString("[FAIL]")

// Config specifies a controller run
type Config struct {
	TimesyncPort    int
	ControlPort     int
	Headroom        time.Duration
	DiscoverTimeout time.Duration
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		TimesyncPort:    timesync.Port,
		ControlPort:     control.Port,
		Headroom:        DefaultHeadroom,
		DiscoverTimeout: DefaultDiscoverTimeout,
	}
}

// speaker is one discovered peer and its control connection; client is
// nil once the peer is marked dead.
type speaker struct {
	ip     net.IP
	client *control.Client
}

// Sender drives one full play run
type Sender struct {
	cfg *Config
}

// NewSender returns a Sender
func NewSender(cfg *Config) *Sender {
	return &Sender{cfg: cfg}
}

// LoadSong reads the whole file and sanity checks that it frames as
// ADTS before any speaker commits to it.
func LoadSong(path string) ([]byte, error) {
	song, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(song) > control.MaxSongSize {
		return nil, fmt.Errorf("%s is %d bytes, speakers only buffer %d", path, len(song), control.MaxSongSize)
	}
	info, err := audio.ParseStream(song)
	if err != nil {
		return nil, fmt.Errorf("%s does not parse as ADTS AAC: %w", path, err)
	}
	log.Infof("loaded %s: %d bytes, %s", path, len(song), info)
	return song, nil
}

// Play runs the full sequence: discover, connect, upload, query the
// reference clock, fan out the start command. A speaker that cannot
// be reached is skipped; the ones we reach start together.
func (s *Sender) Play(song []byte) error {
	disc, err := Discover(s.cfg.TimesyncPort, s.cfg.DiscoverTimeout)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	log.Infof("discovered %d speaker(s) via %s", len(disc.Peers), disc.Source)

	speakers := s.connect(disc.Peers)
	defer func() {
		for _, sp := range speakers {
			if sp.client != nil {
				sp.client.Close()
			}
		}
	}()

	if err := s.upload(speakers, song); err != nil {
		return err
	}

	startAt, err := s.computeStart(speakers)
	if err != nil {
		return err
	}
	return s.startAll(speakers, startAt)
}

// connect opens a control channel to every peer. Connect failures mark
// the peer dead but the run continues with whoever answered.
func (s *Sender) connect(peers []net.IP) []*speaker {
	speakers := make([]*speaker, 0, len(peers))
	for _, ip := range peers {
		addr := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", s.cfg.ControlPort))
		c, err := control.Dial(addr)
		if err != nil {
			fmt.Printf("%s connect %s: %v\n", failString, ip, err)
			speakers = append(speakers, &speaker{ip: ip})
			continue
		}
		fmt.Printf("%s connect %s\n", okString, ip)
		speakers = append(speakers, &speaker{ip: ip, client: c})
	}
	return speakers
}

// upload fans the song out sequentially. An upload failure kills that
// speaker for the rest of the run.
func (s *Sender) upload(speakers []*speaker, song []byte) error {
	live := 0
	for _, sp := range speakers {
		if sp.client == nil {
			continue
		}
		if err := sp.client.Upload(song); err != nil {
			fmt.Printf("%s upload %s: %v\n", failString, sp.ip, err)
			sp.client.Close()
			sp.client = nil
			continue
		}
		fmt.Printf("%s upload %s (%d bytes)\n", okString, sp.ip, len(song))
		live++
	}
	if live == 0 {
		return fmt.Errorf("no speaker accepted the upload")
	}
	return nil
}

// computeStart queries the first live speaker for the cluster
// reference time and adds the headroom. One query is enough: every
// speaker answers in the same reference domain.
func (s *Sender) computeStart(speakers []*speaker) (int64, error) {
	for _, sp := range speakers {
		if sp.client == nil {
			continue
		}
		t0, err := sp.client.QueryTime()
		if err != nil {
			return 0, fmt.Errorf("querying reference time from %s: %w", sp.ip, err)
		}
		startAt := t0 + s.cfg.Headroom.Microseconds()
		log.Infof("reference time %d from %s, starting at %d", t0, sp.ip, startAt)
		return startAt, nil
	}
	return 0, fmt.Errorf("no live speaker to query")
}

// startAll fans the shared deadline out
func (s *Sender) startAll(speakers []*speaker, startAt int64) error {
	started := 0
	for _, sp := range speakers {
		if sp.client == nil {
			continue
		}
		if err := sp.client.StartAt(startAt); err != nil {
			fmt.Printf("%s start %s: %v\n", failString, sp.ip, err)
			continue
		}
		fmt.Printf("%s start %s at %d\n", okString, sp.ip, startAt)
		started++
	}
	if started == 0 {
		return fmt.Errorf("no speaker took the start command")
	}
	log.Infof("%d speaker(s) starting in %v", started, s.cfg.Headroom)
	return nil
}
