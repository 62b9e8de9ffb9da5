package main

// tdma-example places nWifis stations at random on a 300m x 1500m field, lets every
// station that is not a sink send constant bit rate traffic to one of the nSinks
// sinks, and records once per simulated second the rate at which the sinks receive.

import (
	"encoding/csv"
	"flag"
	"fmt"
	"github.com/iti/evt/evtm"
	"github.com/iti/rngstream"
	"github.com/iti/tdma"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"os"
	"path"
	"strconv"
	"time"
)

// harness holds the state the per-second sampler needs
type harness struct {
	nw       *tdma.Network
	sinks    []*tdma.ReceiveCounter
	writer   *csv.Writer
	stats    tdma.FlowStats
	interval time.Duration
	second   int
}

func main() {
	nWifis := flag.Int("nWifis", 20, "number of stations")
	nSinks := flag.Int("nSinks", 10, "number of stations that receive traffic")
	totalTime := flag.Float64("totalTime", 100.0, "simulated seconds to run")
	rate := flag.String("rate", "8kbps", "rate of each flow")
	txpDistance := flag.Float64("txpDistance", tdma.DefaultMaxRange, "maximum range of a transmission in meters")
	slotTime := flag.Duration("slotTime", tdma.DefaultSlotTime, "duration of one slot")
	guardTime := flag.Duration("guardTime", tdma.DefaultGuardTime, "idle time after each grant")
	interFrameGap := flag.Duration("interFrameGap", tdma.DefaultInterFrameTime, "idle time added at the end of every epoch")
	csvFileName := flag.String("CSVfileName", "tdma.csv", "file receiving one row per simulated second")
	trace := flag.String("trace", "", "file receiving the MAC trace, ascii unless it ends in .yaml or .json")
	scenario := flag.String("scenario", "", "yaml or json scenario file; overrides the topology flags")
	verbose := flag.String("loglevel", "info", "logrus level")
	flag.Parse()

	level, err := log.ParseLevel(*verbose)
	if err != nil {
		log.Fatalf("bad log level %s", *verbose)
	}
	log.SetLevel(level)

	if ok, err := tdma.CheckOutputFiles([]string{*csvFileName, *trace}); !ok {
		log.Fatalf("cannot write output: %v", err)
	}

	var desc *tdma.ScenarioDesc
	if len(*scenario) > 0 {
		if ok, err := tdma.CheckReadableFiles([]string{*scenario}); !ok {
			log.Fatalf("cannot read scenario: %v", err)
		}
		ext := path.Ext(*scenario)
		useYAML := ext == ".yaml" || ext == ".yml" || ext == ".YAML"
		desc, err = tdma.ReadScenarioDesc(*scenario, useYAML, nil)
		if err != nil {
			log.Fatalf("scenario %s: %v", *scenario, err)
		}
	} else {
		if *nWifis <= *nSinks {
			log.Fatalf("nWifis (%d) must be larger than nSinks (%d)", *nWifis, *nSinks)
		}
		desc = buildScenario(*nWifis, *nSinks, *totalTime, *rate, *txpDistance, *slotTime, *guardTime, *interFrameGap)
	}

	evtMgr := evtm.New()
	kernel := tdma.CreateEvtmKernel(evtMgr)

	nw, err := tdma.BuildExperiment(kernel, desc)
	if err != nil {
		log.Fatalf("cannot build %s: %v", desc.Name, err)
	}

	reg := prometheus.NewRegistry()
	mm, err := tdma.CreateMacMetrics(reg)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	nw.AttachMetrics(mm)

	if len(*trace) > 0 {
		tm := tdma.CreateTraceManager(desc.Name, true, kernel)
		nw.AttachTrace(tm)
		defer tm.WriteToFile(*trace)
	}

	h := &harness{nw: nw, interval: time.Second}
	for _, stn := range nw.Stations {
		if !isSink(stn.Name, desc) {
			continue
		}
		counter := new(tdma.ReceiveCounter)
		stn.Device.SetReceiveCallback(counter.Receive)
		h.sinks = append(h.sinks, counter)
	}

	f, err := os.Create(*csvFileName)
	if err != nil {
		log.Fatalf("cannot create %s: %v", *csvFileName, err)
	}
	defer f.Close()
	h.writer = csv.NewWriter(f)
	h.writer.Write([]string{"SimulationSecond", "ReceiveRate", "PacketsReceived", "NumberOfSinks"})

	nw.Start()
	kernel.Schedule(h, nil, sampleThroughput, h.interval)

	runTime := *totalTime
	if nw.StopTime > 0 {
		runTime = nw.StopTime.Seconds()
	}
	evtMgr.Run(runTime)
	h.writer.Flush()

	mean, stddev := h.stats.MeanStdDev()
	log.WithFields(log.Fields{"mean kbps": mean, "stddev kbps": stddev, "peak kbps": h.stats.Max(),
		"seconds": len(h.stats.Samples)}).Info("receive rate at the sinks")
	report(reg)
}

// buildScenario describes the random topology selected by the command line
func buildScenario(nWifis, nSinks int, totalTime float64, rate string, txpDistance float64,
	slotTime, guardTime, interFrameGap time.Duration) *tdma.ScenarioDesc {

	desc := tdma.CreateScenarioDesc("tdma-example")
	desc.Mac.SlotTime = slotTime.String()
	desc.Mac.GuardTime = guardTime.String()
	desc.Mac.InterFrameTime = interFrameGap.String()
	desc.Mac.MaxRange = txpDistance
	desc.StopTime = tdma.SecondsToDuration(totalTime).String()
	desc.DefaultSlots = nWifis

	rng := rngstream.New("positions")
	for idx := 0; idx < nWifis; idx++ {
		x := 300.0 * rng.RandU01()
		y := 1500.0 * rng.RandU01()
		desc.AddStation(stationName(idx), idx, x, y, 0.0)
	}

	// flows start at a random time in [50s,51s) when the run is long enough to
	// let them, and immediately otherwise
	for idx := nSinks; idx < nWifis; idx++ {
		start := 0.0
		if totalTime > 51.0 {
			start = 50.0 + rng.RandU01()
		}
		desc.AddFlow(tdma.FlowDesc{
			Name:      fmt.Sprintf("flow-%d", idx),
			Src:       stationName(idx),
			Dst:       stationName(idx % nSinks),
			DataRate:  rate,
			FrameSize: 1000,
			FlowModel: "const",
			Start:     tdma.SecondsToDuration(start).String(),
		})
	}
	return desc
}

func stationName(idx int) string {
	return "wifi" + strconv.Itoa(idx)
}

// isSink reports whether some flow is addressed to station name
func isSink(name string, desc *tdma.ScenarioDesc) bool {
	for _, fd := range desc.Flows {
		if fd.Dst == name {
			return true
		}
	}
	return false
}

// sampleThroughput is the event handler that writes one CSV row per interval
func sampleThroughput(kernel tdma.Kernel, context any, data any) any {
	h := context.(*harness)
	h.second += 1

	pckts, bytes := 0, 0
	for _, counter := range h.sinks {
		p, b := counter.Reset()
		pckts += p
		bytes += b
	}
	kbps := float64(bytes*8) / h.interval.Seconds() / 1000.0
	h.stats.Add(kbps)

	h.writer.Write([]string{strconv.Itoa(h.second), strconv.FormatFloat(kbps, 'f', -1, 64),
		strconv.Itoa(pckts), strconv.Itoa(len(h.sinks))})

	kernel.Schedule(h, nil, sampleThroughput, h.interval)
	return nil
}

// report logs the totals of every metric family gathered from reg
func report(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("cannot gather metrics")
		return
	}
	for _, mf := range families {
		total := 0.0
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				total += m.GetCounter().GetValue()
			} else if m.GetGauge() != nil {
				total += m.GetGauge().GetValue()
			}
		}
		log.WithFields(log.Fields{"metric": mf.GetName(), "series": len(mf.GetMetric()), "total": total}).Info("metric")
	}
}
