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
Package timesync implements the cluster time synchronization service.
Every node broadcasts an announcement once a second carrying its local
clock and its current offset estimates for every peer it knows about.
Listening nodes turn each announcement into a clock-delta sample and
keep the minimum over a sliding window, which bounds the true offset
plus the one-way latency floor of the LAN.
*/
package timesync

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Port is the UDP port announcements are broadcast on
const Port = 8086

// Magic identifies an announcement packet
const Magic uint64 = 0x1435089464683975

// MaxMachines is the maximum cluster size an announcement can carry
const MaxMachines = 32

// PacketSizeBytes is the exact size of an announcement on the wire
const PacketSizeBytes = 16 + MaxMachines*12

// Machine is a single peer entry in an announcement: the peer's address
// and the sender's current clock-delta estimate for it.
type Machine struct {
	IP uint32 // IPv4 address, numeric (big-endian) value
	TD int64  // minimum observed clock delta, microseconds
}

// Packet is a single announcement.
/*
Wire layout, multi-byte fields little-endian except the address:

	offset size field
	0      8    magic = 0x1435089464683975
	8      8    ts (int64, sender local microseconds at construction)
	16     32 x machines:
	              +0 ip (4 address octets in network order, as a
	                     sockaddr holds them)
	              +4 td (int64, microseconds)

Total: 400 bytes. Unused machine slots are all zero.
*/
type Packet struct {
	TS       int64
	Machines [MaxMachines]Machine
}

// Bytes converts Packet to []byte
func (p *Packet) Bytes() []byte {
	b := make([]byte, PacketSizeBytes)
	binary.LittleEndian.PutUint64(b[0:8], Magic)
	binary.LittleEndian.PutUint64(b[8:16], uint64(p.TS))
	for i, m := range p.Machines {
		off := 16 + i*12
		binary.BigEndian.PutUint32(b[off:off+4], m.IP)
		binary.LittleEndian.PutUint64(b[off+4:off+12], uint64(m.TD))
	}
	return b
}

// FromBytes parses an announcement, rejecting wrong-size buffers and
// magic mismatches.
func FromBytes(b []byte, p *Packet) error {
	if len(b) != PacketSizeBytes {
		return fmt.Errorf("announcement is %d bytes, want %d", len(b), PacketSizeBytes)
	}
	if magic := binary.LittleEndian.Uint64(b[0:8]); magic != Magic {
		return fmt.Errorf("announcement magic 0x%x, want 0x%x", magic, Magic)
	}
	p.TS = int64(binary.LittleEndian.Uint64(b[8:16]))
	for i := range p.Machines {
		off := 16 + i*12
		p.Machines[i].IP = binary.BigEndian.Uint32(b[off : off+4])
		p.Machines[i].TD = int64(binary.LittleEndian.Uint64(b[off+4 : off+12]))
	}
	return nil
}

// IPToUint32 returns the numeric value of an IPv4 address, or 0 if the
// address is not IPv4.
func IPToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// Uint32ToIP is the inverse of IPToUint32
func Uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
