package tdma

// tdma.go assembles a network: one medium, one slot scheduler, and for every station
// a framer, a MAC and a device, with the slots of the slot table bound to the MACs.
// BuildExperiment does the same from a ScenarioDesc and adds its flows.

import (
	"fmt"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"net"
	"time"
)

// StationSpec is what BuildNetwork needs to know about a station.  A nil Addr is
// replaced by StationAddress(ID).
type StationSpec struct {
	Name     string
	ID       int
	Position r3.Vec
	Addr     net.HardwareAddr
}

// Station gathers the per-station parts of a network
type Station struct {
	Name     string
	ID       int
	Mobility MobilityModel
	Framer   *Framer
	Mac      *StationMac
	Device   *NetDevice
}

// Network is a built TDMA link and everything attached to it
type Network struct {
	Name      string
	Kernel    Kernel
	Config    MacConfig
	Medium    *Medium
	Scheduler *SlotScheduler
	Table     *SlotTable
	Stations  []*Station
	Reach     *ReachGraph
	Trace     *TraceManager
	Metrics   *MacMetrics
	Flows     []*Flow
	StopTime  time.Duration

	stationByName map[string]*Station
	stationByID   map[int]*Station
	started       bool
}

// BuildNetwork creates the network described by cfg, table and specs.  Errors in any
// of them are configuration errors and panic.
func BuildNetwork(name string, kernel Kernel, cfg MacConfig, table *SlotTable, specs []StationSpec) *Network {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("network %s: %w", name, err))
	}
	if table == nil || table.NumRows() == 0 {
		panic(fmt.Errorf("network %s: %w", name, ErrEmptySlotTable))
	}
	if err := table.Validate(); err != nil {
		panic(fmt.Errorf("network %s: %w", name, err))
	}

	nw := new(Network)
	nw.Name = name
	nw.Kernel = kernel
	nw.Config = cfg
	nw.Table = table
	nw.Stations = []*Station{}
	nw.Flows = []*Flow{}
	nw.stationByName = make(map[string]*Station)
	nw.stationByID = make(map[int]*Station)

	nw.Medium = CreateMedium(kernel, cfg.MaxRange)

	sched := CreateSlotScheduler(kernel)
	sched.SetSlotTime(cfg.SlotTime)
	sched.SetGuardTime(cfg.GuardTime)
	sched.SetInterFrameTime(cfg.InterFrameTime)
	sched.SetStartOffset(cfg.StartOffset)
	sched.SetBitRate(cfg.BitRate)
	totalSlots := cfg.TotalSlots
	if totalSlots == 0 {
		totalSlots = table.NumSlots()
	}
	sched.SetTotalSlotsAllowed(totalSlots)
	sched.SetMedium(nw.Medium)
	if cfg.DeriveGuardTime {
		// with the medium set, the guard time becomes the max range delay
		sched.SetGuardTime(cfg.GuardTime)
	}
	nw.Scheduler = sched

	for idx, spec := range specs {
		if _, present := nw.stationByName[spec.Name]; present {
			panic(fmt.Errorf("network %s: station name %s used more than once", name, spec.Name))
		}
		if _, present := nw.stationByID[spec.ID]; present {
			panic(fmt.Errorf("network %s: station id %d used more than once", name, spec.ID))
		}
		addr := spec.Addr
		if addr == nil {
			addr = StationAddress(spec.ID)
		}

		stn := new(Station)
		stn.Name = spec.Name
		stn.ID = spec.ID
		stn.Mobility = ConstantPosition{Pos: spec.Position}
		stn.Framer = CreateFramer(spec.ID, addr, stn.Mobility)
		stn.Framer.SetMedium(nw.Medium)
		stn.Mac = CreateStationMac(spec.ID, kernel, stn.Framer, sched, cfg.QueueMaxSize, cfg.QueueMaxDelay)
		stn.Device = CreateNetDevice(fmt.Sprintf("%s-wifi%d", spec.Name, idx), 0, stn.Mac)
		if !stn.Device.SetMtu(cfg.Mtu) {
			panic(fmt.Errorf("network %s: mtu %d refused by %s", name, cfg.Mtu, spec.Name))
		}

		if err := table.Bind(sched, spec.ID, stn.Mac); err != nil {
			panic(fmt.Errorf("network %s: %w", name, err))
		}
		if len(table.SlotsOf(spec.ID)) == 0 {
			log.WithFields(log.Fields{"network": name, "station": spec.Name, "id": spec.ID}).Warn("station owns no slots and will never transmit")
		}

		nw.Stations = append(nw.Stations, stn)
		nw.stationByName[spec.Name] = stn
		nw.stationByID[spec.ID] = stn
	}

	for _, id := range table.StationIDs() {
		if _, present := nw.stationByID[id]; !present {
			log.WithFields(log.Fields{"network": name, "id": id}).Warn("slot table lists a station that does not exist")
		}
	}
	if gaps := table.Unassigned(); len(gaps) > 0 {
		log.WithFields(log.Fields{"network": name, "slots": gaps}).Warn("slots without an owner stay idle")
	}
	lost := []int{}
	for slot := totalSlots; slot < table.NumSlots(); slot++ {
		if len(table.Owners(slot)) > 0 {
			lost = append(lost, slot)
		}
	}
	if len(lost) > 0 {
		log.WithFields(log.Fields{"network": name, "epoch": totalSlots, "slots": lost}).Warn("slots past the end of the epoch are never granted")
	}

	nw.Reach = BuildReachGraph(nw.Medium)
	for _, stn := range nw.Stations {
		nw.Reach.SetName(stn.ID, stn.Name)
	}
	if isolated := nw.Reach.Isolated(); len(isolated) > 0 && len(nw.Stations) > 1 {
		log.WithFields(log.Fields{"network": name, "stations": isolated}).Warn("stations out of range of every other station")
	}
	return nw
}

// StationByName returns the named station
func (nw *Network) StationByName(name string) (*Station, bool) {
	stn, present := nw.stationByName[name]
	return stn, present
}

// StationByID returns the station with the given id
func (nw *Network) StationByID(id int) (*Station, bool) {
	stn, present := nw.stationByID[id]
	return stn, present
}

// AttachTrace has tm record the MAC events of every station
func (nw *Network) AttachTrace(tm *TraceManager) {
	nw.Trace = tm
	for _, stn := range nw.Stations {
		tm.AddName(stn.ID, stn.Name, "station")
		stn.Mac.AddObserver(tm)
	}
}

// AttachMetrics has mm count the MAC events and the grants of every station
func (nw *Network) AttachMetrics(mm *MacMetrics) {
	nw.Metrics = mm
	nw.Scheduler.AddGrantObserver(mm)
	for _, stn := range nw.Stations {
		stn.Mac.AddObserver(mm)
	}
}

// AddFlow creates a flow from src to dst; dst "broadcast" sends to every station
func (nw *Network) AddFlow(name, src, dst string, rate float64, frameSize int, flowModel string) (*Flow, error) {
	srcStn, present := nw.stationByName[src]
	if !present {
		return nil, fmt.Errorf("flow %s: no station %s", name, src)
	}
	var dstAddr net.HardwareAddr
	if dst == "broadcast" {
		dstAddr = BroadcastAddress
	} else {
		dstStn, present := nw.stationByName[dst]
		if !present {
			return nil, fmt.Errorf("flow %s: no station %s", name, dst)
		}
		dstAddr = dstStn.Device.Address()
	}
	bgf, err := CreateFlow(name, srcStn.Device, dstAddr, rate, frameSize, flowModel)
	if err != nil {
		return nil, err
	}
	nw.Flows = append(nw.Flows, bgf)
	return bgf, nil
}

// Start initializes every MAC, which starts the scheduler, and then every flow.
// Later calls do nothing.
func (nw *Network) Start() {
	if nw.started {
		return
	}
	nw.started = true
	for _, stn := range nw.Stations {
		stn.Mac.Initialize()
	}
	for _, bgf := range nw.Flows {
		bgf.Start(nw.Kernel)
	}
}

// BuildExperiment builds the network a ScenarioDesc describes, with its flows
func BuildExperiment(kernel Kernel, desc *ScenarioDesc) (*Network, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	cfg, err := desc.Mac.Transform()
	if err != nil {
		return nil, err
	}
	table, err := desc.SlotTable()
	if err != nil {
		return nil, err
	}
	if table.NumRows() == 0 {
		return nil, fmt.Errorf("scenario %s: %w", desc.Name, ErrEmptySlotTable)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	specs, err := desc.StationSpecs()
	if err != nil {
		return nil, err
	}

	nw := BuildNetwork(desc.Name, kernel, cfg, table, specs)
	nw.StopTime = desc.StopDuration()

	errs := []error{}
	for _, fd := range desc.Flows {
		rate, _ := ParseDataRate(fd.DataRate)
		bgf, err := nw.AddFlow(fd.Name, fd.Src, fd.Dst, rate, fd.FrameSize, fd.FlowModel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		bgf.StartTime, err = parseDurationOr(fd.Start, 0)
		errs = append(errs, err)
		bgf.StopTime, err = parseDurationOr(fd.Stop, nw.StopTime)
		errs = append(errs, err)
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return nw, nil
}
