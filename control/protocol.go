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
Package control implements the TCP control channel between the
controller and the speaker daemons: song upload, reference clock query
and the synchronized start command.
*/
package control

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Port is the TCP port speakers accept control connections on
const Port = 8085

// Magic prefixes every command header
const Magic uint32 = 0xAA55AA55

// HeaderSizeBytes is the fixed size of a command header
const HeaderSizeBytes = 12

// Commands understood by the speaker
const (
	CmdUpload    uint32 = 1 // header.Arg bytes of song payload follow
	CmdQueryTime uint32 = 2 // server answers with an int64 reference timestamp
	CmdStartAt   uint32 = 3 // an int64 reference deadline follows
)

// MaxSongSize bounds the upload payload
const MaxSongSize = 10 * 1024 * 1024

// Header is the fixed 12-byte command header.
/*
Wire layout, little-endian:

	offset size field
	0      4    magic = 0xAA55AA55
	4      4    cmd
	8      4    arg (command dependent; song length for CmdUpload)
*/
type Header struct {
	Magic uint32
	Cmd   uint32
	Arg   uint32
}

// Bytes converts Header to []byte
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSizeBytes)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Cmd)
	binary.LittleEndian.PutUint32(b[8:12], h.Arg)
	return b
}

// ReadHeader reads one full command header. A clean EOF between frames
// is returned as io.EOF; an EOF partway through the header comes back
// as io.ErrUnexpectedEOF so the caller can tell a graceful close from
// a broken one.
func ReadHeader(r io.Reader) (*Header, error) {
	b := make([]byte, HeaderSizeBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return &Header{
		Magic: binary.LittleEndian.Uint32(b[0:4]),
		Cmd:   binary.LittleEndian.Uint32(b[4:8]),
		Arg:   binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// WriteHeader writes one command header
func WriteHeader(w io.Writer, cmd, arg uint32) error {
	h := &Header{Magic: Magic, Cmd: cmd, Arg: arg}
	if _, err := w.Write(h.Bytes()); err != nil {
		return fmt.Errorf("writing cmd %d header: %w", cmd, err)
	}
	return nil
}

// ReadTimestamp reads the int64 microsecond timestamp that follows a
// CmdStartAt header or answers a CmdQueryTime.
func ReadTimestamp(r io.Reader) (int64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// WriteTimestamp writes an int64 microsecond timestamp
func WriteTimestamp(w io.Writer, ts int64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(ts))
	_, err := w.Write(b)
	return err
}
