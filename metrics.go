package tdma

import (
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"strconv"
	"time"
)

// MacMetrics exports per-station MAC counters to Prometheus
type MacMetrics struct {
	Events      *prometheus.CounterVec
	Grants      *prometheus.CounterVec
	GrantTime   *prometheus.CounterVec
	QueueLength *prometheus.GaugeVec
}

// CreateMacMetrics registers the MAC metrics against reg, defaulting to the global
// registry when reg is nil
func CreateMacMetrics(reg prometheus.Registerer) (*MacMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tdma_mac_events_total",
		Help: "MAC events by station and event (MacTx, MacTxDrop, MacRx, MacPromiscRx, MacRxDrop).",
	}, []string{"station", "event"}), "tdma_mac_events_total")
	if err != nil {
		return nil, err
	}

	grants, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tdma_grants_total",
		Help: "Transmission grants issued to each station.",
	}, []string{"station"}), "tdma_grants_total")
	if err != nil {
		return nil, err
	}

	grantTime, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tdma_grant_seconds_total",
		Help: "Transmission time granted to each station, in seconds.",
	}, []string{"station"}), "tdma_grant_seconds_total")
	if err != nil {
		return nil, err
	}

	qlen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tdma_queue_length",
		Help: "Packets held in each station queue after the last MAC event.",
	}, []string{"station"})
	if err := reg.Register(qlen); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("collector tdma_queue_length already registered with incompatible type")
		}
		qlen = existing
	}

	return &MacMetrics{Events: events, Grants: grants, GrantTime: grantTime, QueueLength: qlen}, nil
}

// MacEvent counts a MAC event
func (mm *MacMetrics) MacEvent(kind MacEventKind, mac *StationMac, pckt *Packet) {
	station := strconv.Itoa(mac.Station())
	mm.Events.WithLabelValues(station, kind.String()).Inc()
	mm.QueueLength.WithLabelValues(station).Set(float64(mac.Queue().Len()))
}

// GrantIssued counts a grant and the time it carries
func (mm *MacMetrics) GrantIssued(slot, nSlots int, grantee Grantee, budget time.Duration) {
	mac, ok := grantee.(*StationMac)
	if !ok {
		return
	}
	station := strconv.Itoa(mac.Station())
	mm.Grants.WithLabelValues(station).Inc()
	mm.GrantTime.WithLabelValues(station).Add(budget.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
