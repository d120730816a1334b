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

//go:build !linux

package audio

import "fmt"

// OSSWriter plays raw PCM through an Open Sound System device
type OSSWriter struct{}

// OpenOSS is only implemented on Linux; use the portaudio output
// elsewhere.
func OpenOSS(path string) (*OSSWriter, error) {
	return nil, fmt.Errorf("oss output is not supported on this platform")
}

// Write is not implemented on this platform
func (w *OSSWriter) Write(pcm []byte) error {
	return fmt.Errorf("oss output is not supported on this platform")
}

// Close is not implemented on this platform
func (w *OSSWriter) Close() error {
	return nil
}
