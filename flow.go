package tdma

// flow.go generates traffic.  A Flow offers fixed-size packets to the device of its
// source station at a given bit rate, with either constant or exponentially
// distributed inter-arrival times.

import (
	"fmt"
	"github.com/iti/rngstream"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
	"math"
	"net"
	"time"
)

// ProtocolIPv4 is the protocol number flows put in the LLC/SNAP header by default
const ProtocolIPv4 uint16 = 0x0800

// Flow is a packet source bound to one device
type Flow struct {
	Name      string
	FlowModel string
	Src       *NetDevice
	Dst       net.HardwareAddr
	Protocol  uint16
	Rate      float64 // bits per second
	FrameSize int
	StartTime time.Duration
	StopTime  time.Duration // zero for a flow that does not stop
	Suspended bool
	Sent      int
	Refused   int

	generation       int
	rng              *rngstream.RngStream
	sampleNxtArrival func(u01 float64, params []float64) float64
}

// CreateFlow is a constructor.  flowModel is "const" (or "constant") or
// "exp" (or "expon", "exponential").
func CreateFlow(name string, src *NetDevice, dst net.HardwareAddr, rate float64, frameSize int,
	flowModel string) (*Flow, error) {

	if !(rate > 0.0) {
		return nil, fmt.Errorf("flow %s needs a positive rate, got %g", name, rate)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("flow %s needs a positive frame size, got %d", name, frameSize)
	}

	bgf := new(Flow)
	bgf.Name = name
	bgf.FlowModel = flowModel
	bgf.Src = src
	bgf.Dst = dst
	bgf.Protocol = ProtocolIPv4
	bgf.Rate = rate
	bgf.FrameSize = frameSize
	bgf.rng = rngstream.New(name)

	switch flowModel {
	case "expon", "exp", "exponential":
		bgf.sampleNxtArrival = sampleExpRV
	case "const", "constant", "":
		bgf.sampleNxtArrival = sampleConst
	default:
		return nil, fmt.Errorf("flow %s has unknown flow model %s", name, flowModel)
	}
	return bgf, nil
}

// ArrivalRate is the number of packets offered per second
func (bgf *Flow) ArrivalRate() float64 {
	return bgf.Rate / float64(8*bgf.FrameSize)
}

// Start schedules the first packet of the flow at its start time
func (bgf *Flow) Start(kernel Kernel) {
	bgf.Suspended = false
	bgf.generation += 1
	kernel.Schedule(bgf, bgf.generation, flowPcktArrival, bgf.StartTime)
}

// Stop suspends the flow; its pending arrival is discarded
func (bgf *Flow) Stop() {
	bgf.Suspended = true
}

// flowPcktArrival is the event handler for the arrival of one packet of a flow
func flowPcktArrival(kernel Kernel, context any, data any) any {
	bgf := context.(*Flow)
	if bgf.Suspended || data.(int) != bgf.generation {
		return nil
	}
	if bgf.StopTime > 0 && kernel.Now() >= bgf.StopTime {
		bgf.Suspended = true
		return nil
	}

	pckt := CreatePacketOfSize(bgf.FrameSize)
	if err := bgf.Src.Send(pckt, bgf.Dst, bgf.Protocol); err != nil {
		log.WithFields(log.Fields{"flow": bgf.Name, "error": err}).Warn("flow packet refused")
		bgf.Refused += 1
	} else {
		bgf.Sent += 1
	}

	params := []float64{bgf.ArrivalRate()}
	interarrival := bgf.sampleNxtArrival(bgf.rng.RandU01(), params)
	kernel.Schedule(bgf, data, flowPcktArrival, SecondsToDuration(interarrival))
	return nil
}

func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// sampleExpRV draws an exponential inter-arrival time; params[0] is the arrival rate
func sampleExpRV(u01 float64, params []float64) float64 {
	return expRV(u01, params[0])
}

// sampleConst ignores u01 and returns the reciprocal of the arrival rate
func sampleConst(u01 float64, params []float64) float64 {
	return 1.0 / params[0]
}

// ReceiveCounter totals the packets a device accepts.  Its Receive method is a ReceiveFunc.
type ReceiveCounter struct {
	Packets int
	Bytes   int
}

func (rc *ReceiveCounter) Receive(dev *NetDevice, pckt *Packet, protocol uint16, from net.HardwareAddr) {
	rc.Packets += 1
	rc.Bytes += pckt.Size()
}

// Reset zeroes the counts and returns the ones it cleared
func (rc *ReceiveCounter) Reset() (int, int) {
	pckts, bytes := rc.Packets, rc.Bytes
	rc.Packets, rc.Bytes = 0, 0
	return pckts, bytes
}

// FlowStats gathers throughput samples, one per measurement interval
type FlowStats struct {
	Samples []float64
}

func (fs *FlowStats) Add(sample float64) {
	fs.Samples = append(fs.Samples, sample)
}

// MeanStdDev returns the mean and unbiased standard deviation of the samples.
// With fewer than two samples the deviation is zero.
func (fs *FlowStats) MeanStdDev() (float64, float64) {
	switch len(fs.Samples) {
	case 0:
		return 0.0, 0.0
	case 1:
		return fs.Samples[0], 0.0
	}
	return stat.MeanStdDev(fs.Samples, nil)
}

// Max is the largest sample, zero when there are none
func (fs *FlowStats) Max() float64 {
	if len(fs.Samples) == 0 {
		return 0.0
	}
	return slices.Max(fs.Samples)
}
