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

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/rcslab/speakerd/audio"
)

// Clock is the part of the time-sync service the control server needs
type Clock interface {
	GetTime() int64
	SleepUntil(ctx context.Context, ts int64) error
}

// Stats is a minimal interface for recording what the server observes
type Stats interface {
	IncUploads()
	IncQueries()
	IncPlays()
	IncBadFrames()
}

// NoopStats is a Stats implementation that discards everything
type NoopStats struct{}

// IncUploads does nothing
func (NoopStats) IncUploads() {}

// IncQueries does nothing
func (NoopStats) IncQueries() {}

// IncPlays does nothing
func (NoopStats) IncPlays() {}

// IncBadFrames does nothing
func (NoopStats) IncBadFrames() {}

// Config specifies control server options
type Config struct {
	Port        int
	MaxSongSize uint32
}

// Validate Config is sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.MaxSongSize == 0 {
		return fmt.Errorf("max song size must be positive")
	}
	return nil
}

// Server accepts control connections from the controller, one at a
// time, and drives the three-command protocol. The song buffer lives
// in per-connection state and is replaced on every upload.
type Server struct {
	cfg     Config
	clock   Clock
	newSink func() (audio.Sink, error)
	stats   Stats
}

// NewServer returns a control server. newSink is called on every start
// command that has a song loaded; the sink is closed again before the
// handler returns.
func NewServer(cfg Config, clock Clock, newSink func() (audio.Sink, error), stats Stats) *Server {
	if stats == nil {
		stats = NoopStats{}
	}
	return &Server{cfg: cfg, clock: clock, newSink: newSink, stats: stats}
}

// reusePort allows the daemon to rebind its port immediately after a
// restart.
func reusePort(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// Run listens for control connections until the context is cancelled.
// Connections are served sequentially; the controller opens one
// connection per speaker and drives it with strictly ordered commands.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{Control: reusePort}
	ln, err := lc.Listen(ctx, "tcp4", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	log.Infof("control: listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("control: accept: %v", err)
			continue
		}
		log.Infof("control: accepted connection from %s", conn.RemoteAddr())
		if err := s.handleConn(ctx, conn); err != nil {
			log.Errorf("control: connection from %s: %v", conn.RemoteAddr(), err)
		}
		conn.Close()
	}
}

// handleConn runs the per-connection frame loop. A clean close between
// frames ends the loop without error; anything torn mid-frame is
// reported.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	var song []byte
	for {
		h, err := ReadHeader(conn)
		if errors.Is(err, io.EOF) {
			log.Debugf("control: %s closed the connection", conn.RemoteAddr())
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading header: %w", err)
		}
		if h.Magic != Magic {
			// keep reading: the original protocol does not resync,
			// it trusts the stream position and only complains
			s.stats.IncBadFrames()
			log.Warningf("control: bad magic 0x%x from %s", h.Magic, conn.RemoteAddr())
		}
		log.Debugf("control: cmd %d, arg %d", h.Cmd, h.Arg)

		switch h.Cmd {
		case CmdUpload:
			buf, err := s.handleUpload(conn, h.Arg)
			if err != nil {
				return err
			}
			song = buf
		case CmdQueryTime:
			ts := s.clock.GetTime()
			if err := WriteTimestamp(conn, ts); err != nil {
				return fmt.Errorf("answering time query: %w", err)
			}
			s.stats.IncQueries()
		case CmdStartAt:
			startAt, err := ReadTimestamp(conn)
			if err != nil {
				return fmt.Errorf("reading start deadline: %w", err)
			}
			if err := s.handlePlay(ctx, song, startAt); err != nil {
				log.Errorf("control: play: %v", err)
			}
		default:
			s.stats.IncBadFrames()
			log.Warningf("control: invalid command %d", h.Cmd)
		}
	}
}

// handleUpload reads exactly length payload bytes. An oversized length
// is a protocol error that drops the connection rather than letting a
// bogus header commit us to buffering an unbounded stream.
func (s *Server) handleUpload(conn net.Conn, length uint32) ([]byte, error) {
	if length > s.cfg.MaxSongSize {
		return nil, fmt.Errorf("upload of %d bytes exceeds limit of %d", length, s.cfg.MaxSongSize)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("reading %d byte upload: %w", length, err)
	}
	s.stats.IncUploads()
	if info, err := audio.ParseStream(buf); err != nil {
		log.Warningf("control: uploaded payload does not look like ADTS: %v", err)
	} else {
		log.Infof("control: loaded song, %d bytes, %s", length, info)
	}
	return buf, nil
}

// handlePlay waits for the reference deadline and hands the song to the
// audio sink. The sink is scoped to this call: opened on entry, closed
// on every exit path.
func (s *Server) handlePlay(ctx context.Context, song []byte, startAt int64) error {
	if len(song) == 0 {
		return fmt.Errorf("start command with no song loaded")
	}
	sink, err := s.newSink()
	if err != nil {
		return fmt.Errorf("opening audio sink: %w", err)
	}
	defer sink.Close()
	log.Infof("control: starting playback at reference time %d (in %dus)", startAt, startAt-s.clock.GetTime())
	if err := s.clock.SleepUntil(ctx, startAt); err != nil {
		return err
	}
	s.stats.IncPlays()
	if err := sink.Play(ctx, song); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}
