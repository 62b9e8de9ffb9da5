package tdma

// medium.go models the shared broadcast channel.  A frame sent by one endpoint is
// delivered to every other attached endpoint within the maximum range, after a
// propagation delay proportional to the distance between them.

import (
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"math"
	"time"
)

const (
	// DefaultMaxRange is the maximum transmission range in meters
	DefaultMaxRange float64 = 250.0

	// PropagationNsPerMeter is the propagation delay per meter of distance, in nanoseconds
	PropagationNsPerMeter float64 = 3.3

	// SpeedOfLight in meters per second
	SpeedOfLight float64 = 3e8
)

// MobilityModel reports where a station is
type MobilityModel interface {
	Position() r3.Vec
}

// ConstantPosition is a MobilityModel for a station that does not move
type ConstantPosition struct {
	Pos r3.Vec
}

// Position returns the fixed position
func (cp ConstantPosition) Position() r3.Vec {
	return cp.Pos
}

// Distance between the positions of two mobility models, in meters
func Distance(a, b MobilityModel) float64 {
	return r3.Norm(r3.Sub(a.Position(), b.Position()))
}

// PropagationDelay is the delay, rounded to the nearest nanosecond, of a signal
// crossing distance meters
func PropagationDelay(distance float64) time.Duration {
	return time.Duration(math.Round(distance * PropagationNsPerMeter))
}

// Medium holds the endpoints attached to the channel
type Medium struct {
	kernel   Kernel
	maxRange float64
	endpts   []*Framer
}

// CreateMedium is a constructor
func CreateMedium(kernel Kernel, maxRange float64) *Medium {
	if !(maxRange > 0.0) {
		panic("medium maximum range must be positive")
	}
	md := new(Medium)
	md.kernel = kernel
	md.maxRange = maxRange
	md.endpts = []*Framer{}
	return md
}

// MaxRange is the maximum delivery distance in meters
func (md *Medium) MaxRange() float64 {
	return md.maxRange
}

// MaxRangeDelay is the one-way delay of a signal travelling the maximum range
// at the speed of light
func (md *Medium) MaxRangeDelay() time.Duration {
	return SecondsToDuration(md.maxRange / SpeedOfLight)
}

// Attach adds an endpoint.  Endpoints are attached while the topology is built
// and never removed.
func (md *Medium) Attach(fr *Framer) {
	if fr.mobility == nil {
		panic("endpoint attached to the medium without a mobility model")
	}
	md.endpts = append(md.endpts, fr)
}

// NumEndpoints is the number of attached endpoints
func (md *Medium) NumEndpoints() int {
	return len(md.endpts)
}

// Endpoint returns attached endpoint idx
func (md *Medium) Endpoint(idx int) *Framer {
	return md.endpts[idx]
}

// InRange reports whether frames sent by a reach b
func (md *Medium) InRange(a, b MobilityModel) bool {
	return Distance(a, b) <= md.maxRange
}

// Send delivers a copy of frame to every other endpoint within range of the sender.
// Each delivery is scheduled in the context of the receiving endpoint.
func (md *Medium) Send(frame *Packet, sender *Framer) {
	for _, endpt := range md.endpts {
		if endpt == sender {
			continue
		}
		distance := Distance(sender.mobility, endpt.mobility)
		if distance > md.maxRange {
			log.WithFields(log.Fields{"from": sender.station, "to": endpt.station, "distance": distance}).Trace("out of range")
			continue
		}
		md.kernel.Schedule(endpt, frame.Copy(), deliverFrame, PropagationDelay(distance))
	}
}

// deliverFrame is the event handler for the arrival of a frame at an endpoint
func deliverFrame(kernel Kernel, context any, data any) any {
	endpt := context.(*Framer)
	frame := data.(*Packet)
	endpt.Receive(frame)
	return nil
}
