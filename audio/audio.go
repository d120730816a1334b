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
Package audio is the speaker's playback path: the sink contract the
control server drives, ADTS stream inspection, and the PCM output
backends. Decoding ADTS AAC into PCM is an external collaborator
behind the Decoder interface.
*/
package audio

import (
	"context"
	"fmt"
	"io"
)

// Output format: stereo signed 16-bit PCM at 44.1 kHz
const (
	SampleRate     = 44100
	Channels       = 2
	BytesPerSample = 2
)

// DefaultDSP is the OSS device played through unless configured
const DefaultDSP = "/dev/dsp"

// Sink consumes a complete ADTS-framed AAC stream and plays it
type Sink interface {
	Play(ctx context.Context, adts []byte) error
	Close() error
}

// Decoder turns an ADTS-framed AAC stream into stereo S16 PCM frames.
// Decode returns io.EOF once the stream is exhausted.
type Decoder interface {
	Decode() (pcm []byte, err error)
	Close() error
}

// PCMWriter is a sound device that accepts raw stereo S16 samples
type PCMWriter interface {
	Write(pcm []byte) error
	Close() error
}

// StreamSink glues a decoder to a PCM output device
type StreamSink struct {
	newDecoder func(adts []byte) (Decoder, error)
	out        PCMWriter
}

// NewStreamSink returns a Sink that decodes with newDecoder and writes
// the PCM to out.
func NewStreamSink(newDecoder func(adts []byte) (Decoder, error), out PCMWriter) *StreamSink {
	return &StreamSink{newDecoder: newDecoder, out: out}
}

// Play decodes the stream frame by frame, writing each frame's PCM to
// the output as it comes, the way the device expects to be fed.
func (s *StreamSink) Play(ctx context.Context, adts []byte) error {
	dec, err := s.newDecoder(adts)
	if err != nil {
		return fmt.Errorf("opening decoder: %w", err)
	}
	defer dec.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pcm, err := dec.Decode()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		if err := s.out.Write(pcm); err != nil {
			return fmt.Errorf("writing pcm: %w", err)
		}
	}
}

// Close releases the output device
func (s *StreamSink) Close() error {
	return s.out.Close()
}
