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

package audio

import (
	"fmt"
)

// adtsHeaderSize is the fixed part of an ADTS frame header, without the
// optional CRC.
const adtsHeaderSize = 7

// adtsSampleRates maps the 4-bit sampling frequency index of an ADTS
// header to Hz. Index 13-14 are reserved, 15 is escape.
var adtsSampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// ADTSFrame is one parsed ADTS frame header
type ADTSFrame struct {
	SampleRate int
	Channels   int
	CRC        bool
	Length     int // full frame length including the header
}

// StreamInfo summarizes an ADTS stream
type StreamInfo struct {
	Frames     int
	SampleRate int
	Channels   int
	Bytes      int
}

func (i StreamInfo) String() string {
	return fmt.Sprintf("%d ADTS frames, %d Hz, %d channel(s)", i.Frames, i.SampleRate, i.Channels)
}

// ParseADTSHeader parses a single frame header at the start of b
func ParseADTSHeader(b []byte) (*ADTSFrame, error) {
	if len(b) < adtsHeaderSize {
		return nil, fmt.Errorf("adts header needs %d bytes, have %d", adtsHeaderSize, len(b))
	}
	if b[0] != 0xff || b[1]&0xf6 != 0xf0 {
		return nil, fmt.Errorf("adts syncword not found")
	}
	f := &ADTSFrame{CRC: b[1]&0x01 == 0}
	srIdx := (b[2] >> 2) & 0x0f
	if int(srIdx) >= len(adtsSampleRates) {
		return nil, fmt.Errorf("adts sampling frequency index %d is reserved", srIdx)
	}
	f.SampleRate = adtsSampleRates[srIdx]
	f.Channels = int((b[2]&0x01)<<2 | b[3]>>6)
	f.Length = int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5])>>5
	if f.Length < adtsHeaderSize {
		return nil, fmt.Errorf("adts frame length %d is shorter than its header", f.Length)
	}
	return f, nil
}

// ParseStream walks the whole buffer frame by frame. Used to sanity
// check uploads before playback is scheduled; a payload that does not
// frame cleanly would only fail later, mid-play, on every speaker at
// once.
func ParseStream(b []byte) (*StreamInfo, error) {
	info := &StreamInfo{Bytes: len(b)}
	off := 0
	for off < len(b) {
		f, err := ParseADTSHeader(b[off:])
		if err != nil {
			return nil, fmt.Errorf("frame %d at offset %d: %w", info.Frames, off, err)
		}
		if off+f.Length > len(b) {
			return nil, fmt.Errorf("frame %d at offset %d: length %d overruns the stream", info.Frames, off, f.Length)
		}
		if info.Frames == 0 {
			info.SampleRate = f.SampleRate
			info.Channels = f.Channels
		}
		info.Frames++
		off += f.Length
	}
	if info.Frames == 0 {
		return nil, fmt.Errorf("empty stream")
	}
	return info, nil
}
