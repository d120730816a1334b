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
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	frames [][]byte
	closed bool
}

func (d *fakeDecoder) Decode() ([]byte, error) {
	if len(d.frames) == 0 {
		return nil, io.EOF
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

type fakeWriter struct {
	written [][]byte
	err     error
	closed  bool
}

func (w *fakeWriter) Write(pcm []byte) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, append([]byte(nil), pcm...))
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestStreamSinkPlay(t *testing.T) {
	dec := &fakeDecoder{frames: [][]byte{{1, 2}, {3, 4}}}
	out := &fakeWriter{}
	s := NewStreamSink(func([]byte) (Decoder, error) { return dec, nil }, out)

	require.NoError(t, s.Play(context.Background(), []byte{0xff}))
	require.Equal(t, [][]byte{{1, 2}, {3, 4}}, out.written)
	require.True(t, dec.closed, "decoder is released when the stream ends")

	require.NoError(t, s.Close())
	require.True(t, out.closed)
}

func TestStreamSinkWriteError(t *testing.T) {
	dec := &fakeDecoder{frames: [][]byte{{1, 2}}}
	out := &fakeWriter{err: errors.New("device gone")}
	s := NewStreamSink(func([]byte) (Decoder, error) { return dec, nil }, out)

	require.Error(t, s.Play(context.Background(), []byte{0xff}))
	require.True(t, dec.closed, "decoder is released on the error path too")
}

func TestStreamSinkCancelled(t *testing.T) {
	dec := &fakeDecoder{frames: [][]byte{{1, 2}}}
	s := NewStreamSink(func([]byte) (Decoder, error) { return dec, nil }, &fakeWriter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Play(ctx, []byte{0xff}), context.Canceled)
}
