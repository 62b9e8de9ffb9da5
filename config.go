package tdma

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MacConfig holds every setting of the TDMA link.  It is fixed before the network is
// started.
type MacConfig struct {
	SlotTime       time.Duration
	GuardTime      time.Duration
	InterFrameTime time.Duration
	StartOffset    time.Duration

	// DeriveGuardTime replaces GuardTime with the propagation delay at MaxRange
	DeriveGuardTime bool

	BitRate  float64 // bits per second
	MaxRange float64 // meters

	QueueMaxSize  int
	QueueMaxDelay time.Duration

	// TotalSlots is the epoch length; zero takes it from the slot table
	TotalSlots int

	Mtu int
}

// DefaultMacConfig returns the settings used when nothing is said otherwise
func DefaultMacConfig() MacConfig {
	return MacConfig{
		SlotTime:       DefaultSlotTime,
		GuardTime:      DefaultGuardTime,
		InterFrameTime: DefaultInterFrameTime,
		StartOffset:    DefaultStartOffset,
		BitRate:        DefaultBitRate,
		MaxRange:       DefaultMaxRange,
		QueueMaxSize:   DefaultQueueMaxSize,
		QueueMaxDelay:  DefaultQueueMaxDelay,
		Mtu:            DefaultMtu,
	}
}

// Validate reports every setting that is out of bounds
func (mc MacConfig) Validate() error {
	errs := []error{}
	if mc.SlotTime <= 0 {
		errs = append(errs, fmt.Errorf("slot time %v must be positive", mc.SlotTime))
	}
	if mc.GuardTime < 0 {
		errs = append(errs, fmt.Errorf("guard time %v is negative", mc.GuardTime))
	}
	if mc.InterFrameTime < 0 {
		errs = append(errs, fmt.Errorf("inter-frame time %v is negative", mc.InterFrameTime))
	}
	if mc.StartOffset < 0 {
		errs = append(errs, fmt.Errorf("start offset %v is negative", mc.StartOffset))
	}
	if !(mc.BitRate > 0.0) {
		errs = append(errs, fmt.Errorf("bit rate %g must be positive", mc.BitRate))
	}
	if !(mc.MaxRange > 0.0) {
		errs = append(errs, fmt.Errorf("maximum range %g must be positive", mc.MaxRange))
	}
	if mc.QueueMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size %d must be positive", mc.QueueMaxSize))
	}
	if mc.QueueMaxDelay <= 0 {
		errs = append(errs, fmt.Errorf("queue delay %v must be positive", mc.QueueMaxDelay))
	}
	if mc.TotalSlots < 0 {
		errs = append(errs, fmt.Errorf("total slots %d is negative", mc.TotalSlots))
	}
	if mc.Mtu <= 0 || mc.Mtu > DefaultMtu {
		errs = append(errs, fmt.Errorf("mtu %d outside (0,%d]", mc.Mtu, DefaultMtu))
	}
	return ReportErrs(errs)
}

var ErrDataRate = errors.New("unrecognized data rate")

// bits per second of each rate unit
var rateUnits map[string]float64 = map[string]float64{
	"":     1.0,
	"bps":  1.0,
	"b/s":  1.0,
	"Bps":  8.0,
	"B/s":  8.0,
	"kbps": 1e3,
	"kb/s": 1e3,
	"Kbps": 1e3,
	"Kb/s": 1e3,
	"kBps": 8e3,
	"kB/s": 8e3,
	"KBps": 8e3,
	"KB/s": 8e3,
	"Mbps": 1e6,
	"Mb/s": 1e6,
	"MBps": 8e6,
	"MB/s": 8e6,
	"Gbps": 1e9,
	"Gb/s": 1e9,
	"GBps": 8e9,
	"GB/s": 8e9,
}

// ParseDataRate turns strings like "11Mbps", "8kb/s" or "64000" into bits per second
func ParseDataRate(rate string) (float64, error) {
	rate = strings.TrimSpace(rate)
	split := strings.IndexFunc(rate, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-'
	})
	number, unit := rate, ""
	if split >= 0 {
		number, unit = rate[:split], strings.TrimSpace(rate[split:])
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", rate, ErrDataRate)
	}
	scale, present := rateUnits[unit]
	if !present {
		return 0, fmt.Errorf("%q has unit %q: %w", rate, unit, ErrDataRate)
	}
	return value * scale, nil
}

// FormatDataRate writes bps in the largest unit that keeps it whole
func FormatDataRate(bps float64) string {
	switch {
	case bps >= 1e9 && bps == float64(int64(bps/1e9))*1e9:
		return strconv.FormatFloat(bps/1e9, 'f', -1, 64) + "Gbps"
	case bps >= 1e6 && bps == float64(int64(bps/1e6))*1e6:
		return strconv.FormatFloat(bps/1e6, 'f', -1, 64) + "Mbps"
	case bps >= 1e3 && bps == float64(int64(bps/1e3))*1e3:
		return strconv.FormatFloat(bps/1e3, 'f', -1, 64) + "kbps"
	}
	return strconv.FormatFloat(bps, 'f', -1, 64) + "bps"
}

// parseDurationOr parses a Go duration string, returning dflt for the empty string
func parseDurationOr(value string, dflt time.Duration) (time.Duration, error) {
	if len(strings.TrimSpace(value)) == 0 {
		return dflt, nil
	}
	return time.ParseDuration(strings.TrimSpace(value))
}
