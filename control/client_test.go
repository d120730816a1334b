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
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// dialPipe wires a Client straight to a test connection
func dialPipe() (*Client, net.Conn) {
	server, client := net.Pipe()
	return &Client{conn: client}, server
}

func TestClientUpload(t *testing.T) {
	c, server := dialPipe()
	defer c.Close()

	song := bytes.Repeat([]byte{0xab}, 1024)
	go func() {
		require.NoError(t, c.Upload(song))
	}()

	h, err := ReadHeader(server)
	require.NoError(t, err)
	require.Equal(t, &Header{Magic: Magic, Cmd: CmdUpload, Arg: 1024}, h)
	got := make([]byte, len(song))
	_, err = io.ReadFull(server, got)
	require.NoError(t, err)
	require.Equal(t, song, got)
}

func TestClientUploadTooLarge(t *testing.T) {
	c, _ := dialPipe()
	defer c.Close()
	require.Error(t, c.Upload(make([]byte, MaxSongSize+1)), "refuse what the speaker would reject anyway")
}

func TestClientQueryTime(t *testing.T) {
	c, server := dialPipe()
	defer c.Close()

	go func() {
		h, err := ReadHeader(server)
		require.NoError(t, err)
		require.Equal(t, CmdQueryTime, h.Cmd)
		require.NoError(t, WriteTimestamp(server, 424242))
	}()

	ts, err := c.QueryTime()
	require.NoError(t, err)
	require.Equal(t, int64(424242), ts)
}

func TestClientStartAt(t *testing.T) {
	c, server := dialPipe()
	defer c.Close()

	go func() {
		require.NoError(t, c.StartAt(5000000))
	}()

	h, err := ReadHeader(server)
	require.NoError(t, err)
	require.Equal(t, CmdStartAt, h.Cmd)
	require.Equal(t, uint32(0), h.Arg, "arg is reserved, always zero")
	ts, err := ReadTimestamp(server)
	require.NoError(t, err)
	require.Equal(t, int64(5000000), ts)
}
