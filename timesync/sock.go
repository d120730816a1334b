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
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseBroadcast marks a socket broadcast-capable and allows rebinding
// the address and port without waiting out TIME_WAIT. Daemons and the
// controller share the announcement port on the same host, which is
// why SO_REUSEPORT matters here.
func reuseBroadcast(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
			return
		}
		if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); serr != nil {
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// announceConn returns a UDP socket connected to the broadcast
// destination. Connecting pins the source address the kernel will use,
// so LocalAddr tells us which address peers see us under.
func announceConn(dst *net.UDPAddr) (*net.UDPConn, error) {
	d := net.Dialer{Control: reuseBroadcast}
	conn, err := d.Dial("udp4", dst.String())
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}

// ListenConn returns a UDP socket bound to ANY:port with broadcast and
// reuse options set. The controller uses the same kind of socket for
// discovery, which lets it share the port with a speaker daemon running
// on the same host.
func ListenConn(port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseBroadcast}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}
