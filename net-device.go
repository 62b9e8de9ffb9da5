package tdma

// net-device.go is the station's face toward the layers above the MAC.  Packets sent
// through it carry an LLC/SNAP header naming the protocol of the payload; the header
// is removed again on the way up.

import (
	"errors"
	"fmt"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"net"
)

const (
	// MaxMsduSize is the largest 802.11 MAC service data unit
	MaxMsduSize int = 2304

	// LlcSnapHeaderLength is the size of the LLC header plus the SNAP header
	LlcSnapHeaderLength int = 8

	// DefaultMtu is the largest payload a device accepts
	DefaultMtu int = MaxMsduSize - LlcSnapHeaderLength
)

var ErrNotSnap = errors.New("payload does not start with an LLC/SNAP header")

// ReceiveFunc is called for packets the device accepts
type ReceiveFunc func(dev *NetDevice, pckt *Packet, protocol uint16, from net.HardwareAddr)

// PromiscReceiveFunc is called for every packet the device hears
type PromiscReceiveFunc func(dev *NetDevice, pckt *Packet, protocol uint16, from, to net.HardwareAddr, class PacketClass)

// AddLlcSnap prepends an LLC/SNAP header carrying protocol to payload
func AddLlcSnap(payload []byte, protocol uint16) ([]byte, error) {
	llc := &layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03}
	snap := &layers.SNAP{OrganizationalCode: []byte{0x00, 0x00, 0x00}, Type: layers.EthernetType(protocol)}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, llc, snap, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RemoveLlcSnap strips an LLC/SNAP header, returning the protocol it carried
func RemoveLlcSnap(data []byte) (uint16, []byte, error) {
	llc := &layers.LLC{}
	if err := llc.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return 0, nil, err
	}
	if llc.NextLayerType() != layers.LayerTypeSNAP {
		return 0, nil, ErrNotSnap
	}
	snap := &layers.SNAP{}
	if err := snap.DecodeFromBytes(llc.Payload, gopacket.NilDecodeFeedback); err != nil {
		return 0, nil, err
	}
	return uint16(snap.Type), snap.Payload, nil
}

// NetDevice is the network interface of a station
type NetDevice struct {
	ifIndex   int
	name      string
	mac       *StationMac
	mtu       int
	rxFunc    ReceiveFunc
	promiscFn PromiscReceiveFunc
}

// CreateNetDevice builds the device on top of mac and makes itself the mac's uplink
func CreateNetDevice(name string, ifIndex int, mac *StationMac) *NetDevice {
	dev := new(NetDevice)
	dev.name = name
	dev.ifIndex = ifIndex
	dev.mac = mac
	dev.mtu = DefaultMtu
	mac.SetUplink(dev)
	return dev
}

func (dev *NetDevice) Name() string {
	return dev.name
}

func (dev *NetDevice) IfIndex() int {
	return dev.ifIndex
}

func (dev *NetDevice) Mac() *StationMac {
	return dev.mac
}

func (dev *NetDevice) Address() net.HardwareAddr {
	return dev.mac.Address()
}

func (dev *NetDevice) Broadcast() net.HardwareAddr {
	return BroadcastAddress
}

// IsLinkUp reports whether the MAC under the device has been initialized
func (dev *NetDevice) IsLinkUp() bool {
	return dev.mac.Running()
}

// SetMtu refuses values the LLC/SNAP header would push past MaxMsduSize
func (dev *NetDevice) SetMtu(mtu int) bool {
	if mtu <= 0 || mtu > MaxMsduSize-LlcSnapHeaderLength {
		return false
	}
	dev.mtu = mtu
	return true
}

func (dev *NetDevice) Mtu() int {
	return dev.mtu
}

func (dev *NetDevice) SetReceiveCallback(rxFunc ReceiveFunc) {
	dev.rxFunc = rxFunc
}

// SetPromiscReceiveCallback registers rxFunc to hear everything; nil turns it off
func (dev *NetDevice) SetPromiscReceiveCallback(rxFunc PromiscReceiveFunc) {
	dev.promiscFn = rxFunc
	if rxFunc == nil {
		dev.mac.SetPromisc(nil)
		return
	}
	dev.mac.SetPromisc(dev)
}

// QueueState passes through the state of the MAC queue
func (dev *NetDevice) QueueState() int {
	return dev.mac.QueueState()
}

// Send queues pckt for dest
func (dev *NetDevice) Send(pckt *Packet, dest net.HardwareAddr, protocol uint16) error {
	return dev.SendFrom(pckt, dev.Address(), dest, protocol)
}

// SendFrom queues pckt for dest on behalf of source
func (dev *NetDevice) SendFrom(pckt *Packet, source, dest net.HardwareAddr, protocol uint16) error {
	if pckt.Size() > dev.mtu {
		return fmt.Errorf("packet of %d bytes exceeds mtu %d of %s", pckt.Size(), dev.mtu, dev.name)
	}
	framed, err := AddLlcSnap(pckt.Payload, protocol)
	if err != nil {
		return err
	}
	pckt.Payload = framed
	dev.mac.EnqueueFrom(pckt, dest, source)
	return nil
}

// ForwardUp strips the LLC/SNAP header and hands the packet to the receive callback
func (dev *NetDevice) ForwardUp(pckt *Packet, from, to net.HardwareAddr, class PacketClass) {
	protocol, payload, err := RemoveLlcSnap(pckt.Payload)
	if err != nil {
		log.WithFields(log.Fields{"device": dev.name, "error": err}).Debug("discard packet without LLC/SNAP")
		return
	}
	if dev.rxFunc != nil {
		dev.rxFunc(dev, &Packet{UID: pckt.UID, Payload: payload}, protocol, from)
	}
}

// PromiscForwardUp is ForwardUp for the promiscuous callback
func (dev *NetDevice) PromiscForwardUp(pckt *Packet, from, to net.HardwareAddr, class PacketClass) {
	if dev.promiscFn == nil {
		return
	}
	protocol, payload, err := RemoveLlcSnap(pckt.Payload)
	if err != nil {
		return
	}
	dev.promiscFn(dev, &Packet{UID: pckt.UID, Payload: payload}, protocol, from, to, class)
}
