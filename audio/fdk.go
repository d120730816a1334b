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

//go:build fdk

package audio

// #cgo LDFLAGS: -lfdk-aac
// #include <fdk-aac/aacdecoder_lib.h>
import "C"

import (
	"fmt"
	"io"
	"unsafe"
)

// fdkMaxOutput bounds one decoded frame: 2048 samples x 8 channels
const fdkMaxOutput = 2048 * 8

// FDKDecoder wraps the Fraunhofer FDK AAC decoder in ADTS transport
// mode. Build with -tags fdk on a host with libfdk-aac installed.
type FDKDecoder struct {
	handle C.HANDLE_AACDECODER
	in     []byte
	out    []C.INT_PCM
}

// NewADTSDecoder returns a Decoder for an ADTS-framed AAC stream,
// configured for stereo output.
func NewADTSDecoder(adts []byte) (Decoder, error) {
	h := C.aacDecoder_Open(C.TT_MP4_ADTS, 1)
	if h == nil {
		return nil, fmt.Errorf("aacDecoder_Open failed")
	}
	d := &FDKDecoder{handle: h, in: adts, out: make([]C.INT_PCM, fdkMaxOutput)}
	for _, p := range []C.AACDEC_PARAM{C.AAC_PCM_MIN_OUTPUT_CHANNELS, C.AAC_PCM_MAX_OUTPUT_CHANNELS} {
		if st := C.aacDecoder_SetParam(h, p, Channels); st != C.AAC_DEC_OK {
			C.aacDecoder_Close(h)
			return nil, fmt.Errorf("aacDecoder_SetParam error 0x%x", int(st))
		}
	}
	return d, nil
}

// Decode returns the next frame's PCM, io.EOF once the stream is
// exhausted.
func (d *FDKDecoder) Decode() ([]byte, error) {
	for {
		if len(d.in) == 0 {
			return nil, io.EOF
		}
		valid := C.UINT(len(d.in))
		size := C.UINT(len(d.in))
		buf := (*C.UCHAR)(unsafe.Pointer(&d.in[0]))
		if st := C.aacDecoder_Fill(d.handle, &buf, &size, &valid); st != C.AAC_DEC_OK {
			return nil, fmt.Errorf("aacDecoder_Fill error 0x%x", int(st))
		}
		d.in = d.in[len(d.in)-int(valid):]

		st := C.aacDecoder_DecodeFrame(d.handle, &d.out[0], C.INT(len(d.out)), 0)
		if st == C.AAC_DEC_NOT_ENOUGH_BITS {
			continue
		}
		if st != C.AAC_DEC_OK {
			return nil, fmt.Errorf("aacDecoder_DecodeFrame error 0x%x", int(st))
		}
		info := C.aacDecoder_GetStreamInfo(d.handle)
		if info == nil {
			return nil, fmt.Errorf("aacDecoder_GetStreamInfo failed")
		}
		n := int(info.frameSize) * int(info.numChannels)
		pcm := make([]byte, n*BytesPerSample)
		for i := 0; i < n; i++ {
			s := uint16(d.out[i])
			pcm[2*i] = byte(s)
			pcm[2*i+1] = byte(s >> 8)
		}
		return pcm, nil
	}
}

// Close releases the decoder
func (d *FDKDecoder) Close() error {
	C.aacDecoder_Close(d.handle)
	return nil
}
