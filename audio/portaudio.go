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
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// portaudioFrames is how many sample frames we hand the device per
// write. 1024 matches the AAC frame size so a decoded frame maps to
// one write.
const portaudioFrames = 1024

// PortAudioWriter plays raw PCM through the default PortAudio output.
// Alternative to the OSS device for hosts without /dev/dsp.
type PortAudioWriter struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudio initializes PortAudio and opens the default output
// stream for stereo S16 at 44.1 kHz.
func OpenPortAudio() (*PortAudioWriter, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	w := &PortAudioWriter{buf: make([]int16, portaudioFrames*Channels)}
	stream, err := portaudio.OpenDefaultStream(0, Channels, float64(SampleRate), portaudioFrames, &w.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting portaudio stream: %w", err)
	}
	w.stream = stream
	return w, nil
}

// Write pushes PCM samples to the device one buffer at a time. A short
// tail is zero-padded; the device always consumes whole buffers.
func (w *PortAudioWriter) Write(pcm []byte) error {
	for off := 0; off < len(pcm); off += len(w.buf) * BytesPerSample {
		for i := range w.buf {
			b := off + i*BytesPerSample
			if b+1 < len(pcm) {
				w.buf[i] = int16(binary.LittleEndian.Uint16(pcm[b : b+2]))
			} else {
				w.buf[i] = 0
			}
		}
		if err := w.stream.Write(); err != nil {
			return fmt.Errorf("writing to portaudio: %w", err)
		}
	}
	return nil
}

// Close drains and releases the stream
func (w *PortAudioWriter) Close() error {
	err := w.stream.Stop()
	if cerr := w.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()
	return err
}
