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
	"fmt"
	"net"
	"time"
)

// DialTimeout bounds how long we wait for a speaker to accept
const DialTimeout = 3 * time.Second

// Client drives one speaker's control channel
type Client struct {
	conn net.Conn
}

// Dial connects to a speaker's control port. Nagle is disabled: the
// protocol is a handful of small writes and any coalescing delay eats
// into the start-time headroom.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp4", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("disabling nagle on %s: %w", addr, err)
		}
	}
	return &Client{conn: conn}, nil
}

// Upload sends the song payload to the speaker
func (c *Client) Upload(song []byte) error {
	if len(song) > MaxSongSize {
		return fmt.Errorf("song of %d bytes exceeds the speaker buffer of %d", len(song), MaxSongSize)
	}
	if err := WriteHeader(c.conn, CmdUpload, uint32(len(song))); err != nil {
		return err
	}
	if _, err := c.conn.Write(song); err != nil {
		return fmt.Errorf("writing %d byte payload: %w", len(song), err)
	}
	return nil
}

// QueryTime asks the speaker for its current reference time
func (c *Client) QueryTime() (int64, error) {
	if err := WriteHeader(c.conn, CmdQueryTime, 0); err != nil {
		return 0, err
	}
	ts, err := ReadTimestamp(c.conn)
	if err != nil {
		return 0, fmt.Errorf("reading reference time: %w", err)
	}
	return ts, nil
}

// StartAt schedules playback at the given reference time. The arg
// field is reserved and always written as zero.
func (c *Client) StartAt(ts int64) error {
	if err := WriteHeader(c.conn, CmdStartAt, 0); err != nil {
		return err
	}
	if err := WriteTimestamp(c.conn, ts); err != nil {
		return fmt.Errorf("writing start deadline: %w", err)
	}
	return nil
}

// RemoteAddr returns the speaker's address
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the control channel
func (c *Client) Close() error {
	return c.conn.Close()
}
