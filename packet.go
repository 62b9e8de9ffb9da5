package tdma

import (
	"fmt"
	"golang.org/x/exp/slices"
	"net"
)

// Packet is the unit carried through the MAC.  UID is preserved by Copy so that
// a frame seen at a receiver can be matched with the packet that was sent.
type Packet struct {
	UID     uint64
	Payload []byte
}

var nxtPacketUID uint64 = 0

// CreatePacket wraps payload in a packet with a fresh UID
func CreatePacket(payload []byte) *Packet {
	nxtPacketUID += 1
	return &Packet{UID: nxtPacketUID, Payload: payload}
}

// CreatePacketOfSize makes a zero-filled packet of size bytes
func CreatePacketOfSize(size int) *Packet {
	return CreatePacket(make([]byte, size))
}

// Size is the payload length in bytes
func (p *Packet) Size() int {
	return len(p.Payload)
}

// Copy duplicates the payload, keeping the UID
func (p *Packet) Copy() *Packet {
	return &Packet{UID: p.UID, Payload: slices.Clone(p.Payload)}
}

func (p *Packet) String() string {
	return fmt.Sprintf("uid=%d size=%d", p.UID, len(p.Payload))
}

// BroadcastAddress is ff:ff:ff:ff:ff:ff
var BroadcastAddress = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsBroadcast reports whether addr is the all-ones address
func IsBroadcast(addr net.HardwareAddr) bool {
	return slices.Equal(addr, BroadcastAddress)
}

// IsGroup reports whether the group bit of addr is set
func IsGroup(addr net.HardwareAddr) bool {
	return len(addr) > 0 && addr[0]&0x01 != 0
}

// StationAddress derives a locally unique unicast address from a station id
func StationAddress(stationID int) net.HardwareAddr {
	id := uint32(stationID + 1)
	return net.HardwareAddr{0x00, 0x00, byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}
