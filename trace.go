package tdma

import (
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"path"
	"strconv"
	"time"
)

var mekToOp map[MacEventKind]string = map[MacEventKind]string{MacTx: "t", MacRx: "r", MacTxDrop: "d", MacRxDrop: "d"}

// TraceRecord is one transmit, receive or drop event
type TraceRecord struct {
	Op      string  `json:"op" yaml:"op"`
	Time    float64 `json:"time" yaml:"time"`
	Context string  `json:"context" yaml:"context"`
	Packet  string  `json:"packet" yaml:"packet"`
}

// Line renders the record as an ASCII trace line
func (tr TraceRecord) Line() string {
	return fmt.Sprintf("%s %s %s %s", tr.Op, strconv.FormatFloat(tr.Time, 'f', -1, 64), tr.Context, tr.Packet)
}

// NameType is an entry in the dictionary of station names saved with a trace
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers the MAC events of a run.  Each event is written as a line
// of text as it happens, if a writer is set, and kept for WriteToFile.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// RunID tells apart traces of runs of the same experiment
	RunID string `json:"runid" yaml:"runid"`

	// text name associated with each station id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	Records []TraceRecord `json:"records" yaml:"records"`

	clock  Clock
	writer io.Writer
}

// CreateTraceManager is a constructor.  When active is false the manager ignores
// every event, so that calls to it may be left in place.
func CreateTraceManager(expName string, active bool, clock Clock) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.RunID = uuid.NewString()
	tm.NameByID = make(map[int]NameType)
	tm.Records = []TraceRecord{}
	tm.clock = clock
	return tm
}

// Active tells the caller whether the TraceManager is being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// SetWriter directs ASCII trace lines to w
func (tm *TraceManager) SetWriter(w io.Writer) {
	tm.writer = w
}

// AddName adds a station to the id -> (name,type) dictionary
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.InUse {
		return
	}
	if _, present := tm.NameByID[id]; present {
		panic(fmt.Errorf("duplicated id %d in AddName", id))
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// TraceContext names the MAC trace source of a station
func TraceContext(station, ifIndex int, kind MacEventKind) string {
	return fmt.Sprintf("/NodeList/%d/DeviceList/%d/$tdma.NetDevice/Mac/%s", station, ifIndex, kind.String())
}

// MacEvent records transmit, receive and drop events
func (tm *TraceManager) MacEvent(kind MacEventKind, mac *StationMac, pckt *Packet) {
	op, traced := mekToOp[kind]
	if !tm.InUse || !traced {
		return
	}
	tm.AddTrace(tm.clock.Now(), op, TraceContext(mac.Station(), 0, kind), pckt)
}

// AddTrace stores a record and writes its line
func (tm *TraceManager) AddTrace(when time.Duration, op, context string, pckt *Packet) {
	if !tm.InUse {
		return
	}
	rec := TraceRecord{Op: op, Time: when.Seconds(), Context: context, Packet: pckt.String()}
	tm.Records = append(tm.Records, rec)
	if tm.writer != nil {
		fmt.Fprintln(tm.writer, rec.Line())
	}
}

// WriteToFile stores the TraceManager to the named file.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	} else {
		for _, rec := range tm.Records {
			bytes = append(bytes, []byte(rec.Line()+"\n")...)
		}
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.Write(bytes)
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return true
}
