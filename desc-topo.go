package tdma

// desc-topo.go holds the serializable description of a TDMA scenario: the link
// settings, the stations and where they are, which slots each owns, and the traffic
// offered.  Descriptions are read from and written to yaml or json files, and are
// turned into run-time structures by BuildExperiment.

import (
	"encoding/json"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// A StationDesc places one station.  Addr is optional; when empty an address is
// derived from ID.
type StationDesc struct {
	Name string  `json:"name" yaml:"name"`
	ID   int     `json:"id" yaml:"id"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Z    float64 `json:"z" yaml:"z"`
	Addr string  `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// A MacDesc gives the link settings.  Times are Go duration strings ("1100us"),
// the data rate a string like "11Mbps".  Empty or zero fields take their defaults.
type MacDesc struct {
	SlotTime        string  `json:"slottime" yaml:"slottime"`
	GuardTime       string  `json:"guardtime" yaml:"guardtime"`
	DeriveGuardTime bool    `json:"deriveguardtime" yaml:"deriveguardtime"`
	InterFrameTime  string  `json:"interframetime" yaml:"interframetime"`
	StartOffset     string  `json:"startoffset" yaml:"startoffset"`
	DataRate        string  `json:"datarate" yaml:"datarate"`
	MaxRange        float64 `json:"maxrange" yaml:"maxrange"`
	QueueMaxSize    int     `json:"queuemaxsize" yaml:"queuemaxsize"`
	QueueMaxDelay   string  `json:"queuemaxdelay" yaml:"queuemaxdelay"`
	TotalSlots      int     `json:"totalslots" yaml:"totalslots"`
	Mtu             int     `json:"mtu" yaml:"mtu"`
}

// Transform turns the description into a MacConfig
func (md MacDesc) Transform() (MacConfig, error) {
	mc := DefaultMacConfig()
	errs := []error{}
	var err error

	mc.SlotTime, err = parseDurationOr(md.SlotTime, mc.SlotTime)
	errs = append(errs, err)
	mc.GuardTime, err = parseDurationOr(md.GuardTime, mc.GuardTime)
	errs = append(errs, err)
	mc.InterFrameTime, err = parseDurationOr(md.InterFrameTime, mc.InterFrameTime)
	errs = append(errs, err)
	mc.StartOffset, err = parseDurationOr(md.StartOffset, mc.StartOffset)
	errs = append(errs, err)
	mc.QueueMaxDelay, err = parseDurationOr(md.QueueMaxDelay, mc.QueueMaxDelay)
	errs = append(errs, err)

	if len(md.DataRate) > 0 {
		mc.BitRate, err = ParseDataRate(md.DataRate)
		errs = append(errs, err)
	}
	if md.MaxRange != 0.0 {
		mc.MaxRange = md.MaxRange
	}
	if md.QueueMaxSize != 0 {
		mc.QueueMaxSize = md.QueueMaxSize
	}
	if md.Mtu != 0 {
		mc.Mtu = md.Mtu
	}
	mc.TotalSlots = md.TotalSlots
	mc.DeriveGuardTime = md.DeriveGuardTime

	if rerr := ReportErrs(errs); rerr != nil {
		return mc, rerr
	}
	return mc, mc.Validate()
}

// DescribeMacConfig is the inverse of MacDesc.Transform
func DescribeMacConfig(mc MacConfig) MacDesc {
	return MacDesc{
		SlotTime:        mc.SlotTime.String(),
		GuardTime:       mc.GuardTime.String(),
		DeriveGuardTime: mc.DeriveGuardTime,
		InterFrameTime:  mc.InterFrameTime.String(),
		StartOffset:     mc.StartOffset.String(),
		DataRate:        FormatDataRate(mc.BitRate),
		MaxRange:        mc.MaxRange,
		QueueMaxSize:    mc.QueueMaxSize,
		QueueMaxDelay:   mc.QueueMaxDelay.String(),
		TotalSlots:      mc.TotalSlots,
		Mtu:             mc.Mtu,
	}
}

// A SlotDesc is one row of an inline slot assignment; Flags is a comma-separated
// list of 0s and 1s
type SlotDesc struct {
	Station int    `json:"station" yaml:"station"`
	Flags   string `json:"flags" yaml:"flags"`
}

// A FlowDesc describes traffic from one station to another.  Dst may name a station
// or be "broadcast".
type FlowDesc struct {
	Name      string `json:"name" yaml:"name"`
	Src       string `json:"src" yaml:"src"`
	Dst       string `json:"dst" yaml:"dst"`
	DataRate  string `json:"datarate" yaml:"datarate"`
	FrameSize int    `json:"framesize" yaml:"framesize"`
	FlowModel string `json:"flowmodel" yaml:"flowmodel"`
	Start     string `json:"start" yaml:"start"`
	Stop      string `json:"stop" yaml:"stop"`
}

// ScenarioDesc is the whole description of a run.  Slots come from Slots when given,
// otherwise from SlotFile, otherwise DefaultSlots slots are divided evenly among
// the stations.
type ScenarioDesc struct {
	Name         string        `json:"name" yaml:"name"`
	Mac          MacDesc       `json:"mac" yaml:"mac"`
	Stations     []StationDesc `json:"stations" yaml:"stations"`
	SlotFile     string        `json:"slotfile" yaml:"slotfile"`
	Slots        []SlotDesc    `json:"slots" yaml:"slots"`
	DefaultSlots int           `json:"defaultslots" yaml:"defaultslots"`
	Flows        []FlowDesc    `json:"flows" yaml:"flows"`
	StopTime     string        `json:"stoptime" yaml:"stoptime"`
	TraceFile    string        `json:"tracefile" yaml:"tracefile"`
}

// CreateScenarioDesc is an initialization constructor
func CreateScenarioDesc(name string) *ScenarioDesc {
	sd := new(ScenarioDesc)
	sd.Name = name
	sd.Mac = DescribeMacConfig(DefaultMacConfig())
	sd.Stations = []StationDesc{}
	sd.Slots = []SlotDesc{}
	sd.Flows = []FlowDesc{}
	return sd
}

// AddStation appends a station description
func (sd *ScenarioDesc) AddStation(name string, id int, x, y, z float64) {
	sd.Stations = append(sd.Stations, StationDesc{Name: name, ID: id, X: x, Y: y, Z: z})
}

// AddSlots appends an inline slot row for station
func (sd *ScenarioDesc) AddSlots(station int, flags []int) {
	strs := make([]string, len(flags))
	for idx, flag := range flags {
		strs[idx] = fmt.Sprintf("%d", flag)
	}
	sd.Slots = append(sd.Slots, SlotDesc{Station: station, Flags: strings.Join(strs, ",")})
}

// AddFlow appends a flow description
func (sd *ScenarioDesc) AddFlow(fd FlowDesc) {
	sd.Flows = append(sd.Flows, fd)
}

// SlotTable builds the slot table the description calls for
func (sd *ScenarioDesc) SlotTable() (*SlotTable, error) {
	if len(sd.Slots) > 0 {
		lines := make([]string, len(sd.Slots))
		for idx, row := range sd.Slots {
			lines[idx] = fmt.Sprintf("%d:%s", row.Station, row.Flags)
		}
		return ParseSlotAssignment(strings.NewReader(strings.Join(lines, "\n")))
	}
	if len(sd.SlotFile) > 0 {
		return ReadSlotAssignmentFile(sd.SlotFile)
	}
	nSlots := sd.DefaultSlots
	if nSlots == 0 {
		nSlots = len(sd.Stations)
	}
	return CreateDefaultSlotTable(len(sd.Stations), nSlots)
}

// StationSpecs turns the station descriptions into the form BuildNetwork takes
func (sd *ScenarioDesc) StationSpecs() ([]StationSpec, error) {
	specs := make([]StationSpec, 0, len(sd.Stations))
	errs := []error{}
	for _, stn := range sd.Stations {
		spec := StationSpec{Name: stn.Name, ID: stn.ID}
		spec.Position.X, spec.Position.Y, spec.Position.Z = stn.X, stn.Y, stn.Z
		if len(stn.Addr) > 0 {
			addr, err := net.ParseMAC(stn.Addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("station %s: %w", stn.Name, err))
				continue
			}
			spec.Addr = addr
		}
		specs = append(specs, spec)
	}
	return specs, ReportErrs(errs)
}

// Validate checks that names and ids are unique and that flows refer to known stations
func (sd *ScenarioDesc) Validate() error {
	errs := []error{}
	names := make(map[string]bool)
	ids := make(map[int]bool)
	for _, stn := range sd.Stations {
		if names[stn.Name] {
			errs = append(errs, fmt.Errorf("station name %s used more than once", stn.Name))
		}
		if ids[stn.ID] {
			errs = append(errs, fmt.Errorf("station id %d used more than once", stn.ID))
		}
		names[stn.Name] = true
		ids[stn.ID] = true
	}
	if len(sd.Stations) == 0 {
		errs = append(errs, errors.New("scenario has no stations"))
	}
	for _, fd := range sd.Flows {
		if !names[fd.Src] {
			errs = append(errs, fmt.Errorf("flow %s source %s is not a station", fd.Name, fd.Src))
		}
		if fd.Dst != "broadcast" && !names[fd.Dst] {
			errs = append(errs, fmt.Errorf("flow %s destination %s is not a station", fd.Name, fd.Dst))
		}
		if _, err := ParseDataRate(fd.DataRate); err != nil {
			errs = append(errs, fmt.Errorf("flow %s: %w", fd.Name, err))
		}
	}
	if _, err := sd.Mac.Transform(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDurationOr(sd.StopTime, 0); err != nil {
		errs = append(errs, fmt.Errorf("stop time: %w", err))
	}
	return ReportErrs(errs)
}

// StopDuration is the stop time of the run, zero when none is given
func (sd *ScenarioDesc) StopDuration() time.Duration {
	stop, err := parseDurationOr(sd.StopTime, 0)
	if err != nil {
		return 0
	}
	return stop
}

// WriteToFile serializes the ScenarioDesc and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (sd *ScenarioDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*sd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*sd, "", "\t")
	} else {
		return fmt.Errorf("cannot tell the format of %s from its extension", filename)
	}
	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	defer f.Close()
	_, werr := f.Write(bytes)
	return werr
}

// ReadScenarioDesc deserializes a slice of bytes into a ScenarioDesc.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  Error returned if
// any part of the process generates the error.
func ReadScenarioDesc(filename string, useYAML bool, dict []byte) (*ScenarioDesc, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, err := os.Stat(filename)
		if os.IsNotExist(err) || (err == nil && fileInfo.IsDir()) {
			return nil, fmt.Errorf("scenario %s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ScenarioDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}

// ReportErrs folds the non-nil errors of a list into one error, nil when there are none
func ReportErrs(errs []error) error {
	kept := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return errors.Join(kept...)
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		// the directory of each named file must exist
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			directory = "."
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
