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

//go:build linux

package audio

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// OSS ioctl requests, _IOWR('P', n, int)
const (
	sndctlDSPSpeed    = 0xc0045002
	sndctlDSPStereo   = 0xc0045003
	sndctlDSPSetFmt   = 0xc0045005
	sndctlDSPChannels = 0xc0045006

	afmtS16LE = 0x00000010
)

// OSSWriter plays raw PCM through an Open Sound System device
type OSSWriter struct {
	fd   int
	path string
}

// OpenOSS opens the device write-only and configures it for stereo
// S16 at 44.1 kHz. The device rejecting any of the settings is fatal
// for the writer; playing at the wrong rate would put this speaker out
// of sync with the rest of the cluster.
func OpenOSS(path string) (*OSSWriter, error) {
	fd, err := unix.Open(path, unix.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	w := &OSSWriter{fd: fd, path: path}

	for _, req := range []struct {
		name  string
		ioctl uint
		value int
	}{
		{"SNDCTL_DSP_SETFMT", sndctlDSPSetFmt, afmtS16LE},
		{"SNDCTL_DSP_CHANNELS", sndctlDSPChannels, Channels},
		{"SNDCTL_DSP_SPEED", sndctlDSPSpeed, SampleRate},
		{"SNDCTL_DSP_STEREO", sndctlDSPStereo, 1},
	} {
		if err := unix.IoctlSetPointerInt(fd, req.ioctl, req.value); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("ioctl %s on %s: %w", req.name, path, err)
		}
	}
	log.Debugf("audio: %s configured for %d Hz, %d channels, S16", path, SampleRate, Channels)
	return w, nil
}

// Write pushes PCM samples to the device, blocking until the device
// has taken all of them.
func (w *OSSWriter) Write(pcm []byte) error {
	for len(pcm) > 0 {
		n, err := unix.Write(w.fd, pcm)
		if err != nil {
			return fmt.Errorf("writing to %s: %w", w.path, err)
		}
		pcm = pcm[n:]
	}
	return nil
}

// Close releases the device
func (w *OSSWriter) Close() error {
	return unix.Close(w.fd)
}
