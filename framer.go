package tdma

// framer.go is the lowest layer of a station's MAC.  Outbound packets get an 802.11
// header and a frame check sequence and are handed to the medium; inbound frames
// lose both again, and only data and management frames are passed upward.

import (
	"encoding/binary"
	"errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"hash/crc32"
	"net"
)

const (
	// MacHeaderSize is the length of a data or management frame header
	MacHeaderSize int = 24

	// FcsSize is the length of the frame check sequence trailer
	FcsSize int = 4
)

var ErrBadChecksum = errors.New("frame check sequence mismatch")

// MacHeader describes the 802.11 header of a frame.  Addr1 is the receiver,
// Addr2 the transmitter and Addr3 the station the packet originated at.
type MacHeader struct {
	Type       layers.Dot11Type
	Flags      layers.Dot11Flags
	DurationID uint16
	Addr1      net.HardwareAddr
	Addr2      net.HardwareAddr
	Addr3      net.HardwareAddr
	Sequence   uint16
}

// IsData is true for every data subtype
func (hdr MacHeader) IsData() bool {
	return hdr.Type.MainType() == layers.Dot11TypeData
}

// IsMgmt is true for every management subtype
func (hdr MacHeader) IsMgmt() bool {
	return hdr.Type.MainType() == layers.Dot11TypeMgmt
}

// EncodeFrame returns header, payload and FCS as one byte slice
func EncodeFrame(payload []byte, hdr MacHeader) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:           hdr.Type,
		Flags:          hdr.Flags,
		DurationID:     hdr.DurationID,
		Address1:       hdr.Addr1,
		Address2:       hdr.Addr2,
		Address3:       hdr.Addr3,
		SequenceNumber: hdr.Sequence & 0x0fff,
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, dot11, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	fcs, err := buf.AppendBytes(FcsSize)
	if err != nil {
		return nil, err
	}
	frame := buf.Bytes()
	binary.LittleEndian.PutUint32(fcs, crc32.ChecksumIEEE(frame[:len(frame)-FcsSize]))
	return frame, nil
}

// DecodeFrame splits a frame into its header and payload.  A frame whose FCS does
// not match is returned with ErrBadChecksum.
func DecodeFrame(frame []byte) (MacHeader, []byte, error) {
	dot11 := &layers.Dot11{}
	if err := dot11.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return MacHeader{}, nil, err
	}
	hdr := MacHeader{
		Type:       dot11.Type,
		Flags:      dot11.Flags,
		DurationID: dot11.DurationID,
		Addr1:      slices.Clone(dot11.Address1),
		Addr2:      slices.Clone(dot11.Address2),
		Addr3:      slices.Clone(dot11.Address3),
		Sequence:   dot11.SequenceNumber,
	}
	if !dot11.ChecksumValid() {
		return hdr, nil, ErrBadChecksum
	}
	return hdr, slices.Clone(dot11.Payload), nil
}

// FrameReceiver takes the packets a Framer passes up
type FrameReceiver interface {
	ReceiveFrame(pckt *Packet, hdr MacHeader)
	DropFrame(frame *Packet)
}

// Framer attaches a station to the medium
type Framer struct {
	station  int
	addr     net.HardwareAddr
	mobility MobilityModel
	medium   *Medium
	receiver FrameReceiver
	sequence uint16
}

// CreateFramer is a constructor
func CreateFramer(station int, addr net.HardwareAddr, mobility MobilityModel) *Framer {
	fr := new(Framer)
	fr.station = station
	fr.addr = addr
	fr.mobility = mobility
	return fr
}

func (fr *Framer) Station() int {
	return fr.station
}

func (fr *Framer) Address() net.HardwareAddr {
	return fr.addr
}

func (fr *Framer) Mobility() MobilityModel {
	return fr.mobility
}

// SetMedium attaches the framer to md
func (fr *Framer) SetMedium(md *Medium) {
	fr.medium = md
	md.Attach(fr)
}

func (fr *Framer) Medium() *Medium {
	return fr.medium
}

func (fr *Framer) SetReceiver(rcvr FrameReceiver) {
	fr.receiver = rcvr
}

// FrameSize is the on-air size of pckt once framed
func (fr *Framer) FrameSize(pckt *Packet) int {
	return pckt.Size() + MacHeaderSize + FcsSize
}

// StartTransmission frames pckt and sends it on the medium
func (fr *Framer) StartTransmission(pckt *Packet, hdr MacHeader) {
	hdr.Sequence = fr.sequence
	fr.sequence = (fr.sequence + 1) & 0x0fff

	frameBytes, err := EncodeFrame(pckt.Payload, hdr)
	if err != nil {
		panic(err)
	}
	log.WithFields(log.Fields{"station": fr.station, "to": hdr.Addr1.String(), "size": len(frameBytes)}).Debug("send frame")
	fr.medium.Send(&Packet{UID: pckt.UID, Payload: frameBytes}, fr)
}

// Receive unframes a frame delivered by the medium
func (fr *Framer) Receive(frame *Packet) {
	hdr, payload, err := DecodeFrame(frame.Payload)
	if err != nil && !errors.Is(err, ErrBadChecksum) {
		log.WithFields(log.Fields{"station": fr.station, "error": err}).Debug("undecodable frame")
		if fr.receiver != nil {
			fr.receiver.DropFrame(frame)
		}
		return
	}
	if !(hdr.IsData() || hdr.IsMgmt()) {
		log.WithFields(log.Fields{"station": fr.station, "type": hdr.Type.String()}).Debug("discard frame that is neither data nor management")
		return
	}
	if err != nil {
		log.WithFields(log.Fields{"station": fr.station, "from": hdr.Addr2.String()}).Debug("discard frame with bad FCS")
		if fr.receiver != nil {
			fr.receiver.DropFrame(frame)
		}
		return
	}
	if fr.receiver != nil {
		fr.receiver.ReceiveFrame(&Packet{UID: frame.UID, Payload: payload}, hdr)
	}
}
