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

package timesync

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	in := &Packet{TS: 1234567890123}
	in.Machines[0] = Machine{IP: IPToUint32(net.ParseIP("192.168.1.10")), TD: -3000000}
	in.Machines[1] = Machine{IP: IPToUint32(net.ParseIP("192.168.1.11")), TD: 42}
	b := in.Bytes()
	require.Len(t, b, PacketSizeBytes)

	out := &Packet{}
	require.NoError(t, FromBytes(b, out))
	require.Equal(t, in, out)
}

func TestPacketWireLayout(t *testing.T) {
	p := &Packet{TS: 1}
	p.Machines[0] = Machine{IP: IPToUint32(net.ParseIP("10.0.0.1")), TD: 2}
	b := p.Bytes()
	// magic, little-endian
	require.Equal(t, []byte{0x75, 0x39, 0x68, 0x64, 0x94, 0x08, 0x35, 0x14}, b[0:8])
	// ts = 1
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, b[8:16])
	// address octets in network order
	require.Equal(t, []byte{10, 0, 0, 1}, b[16:20])
	// td = 2
	require.Equal(t, []byte{2, 0, 0, 0, 0, 0, 0, 0}, b[20:28])
}

func TestPacketBadMagic(t *testing.T) {
	b := (&Packet{TS: 1}).Bytes()
	b[0] ^= 0xff
	require.Error(t, FromBytes(b, &Packet{}))
}

func TestPacketWrongSize(t *testing.T) {
	b := (&Packet{TS: 1}).Bytes()
	require.Error(t, FromBytes(b[:PacketSizeBytes-1], &Packet{}), "short datagram must be dropped")
	require.Error(t, FromBytes(append(b, 0), &Packet{}), "oversized datagram must be dropped")
}

func TestIPConversion(t *testing.T) {
	ip := net.ParseIP("192.168.1.255")
	v := IPToUint32(ip)
	require.Equal(t, uint32(0xc0a801ff), v)
	require.True(t, ip.Equal(Uint32ToIP(v)))
	require.Equal(t, uint32(0), IPToUint32(net.ParseIP("::1")), "IPv6 has no v4 value")

	// the numeric order matches the dotted-quad order used to pick
	// the reference node
	require.Less(t, IPToUint32(net.ParseIP("10.0.0.1")), IPToUint32(net.ParseIP("10.0.0.2")))
	require.Less(t, IPToUint32(net.ParseIP("10.0.0.255")), IPToUint32(net.ParseIP("10.0.1.0")))
}
