package tdma

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const scenarioYAML = `name: three
mac:
  slottime: 1100us
  guardtime: 100us
  interframetime: 200us
  datarate: 11Mbps
  maxrange: 400
  queuemaxsize: 50
stations:
  - name: a
    id: 1
    x: 0
    y: 0
  - name: b
    id: 2
    x: 303
    y: 0
  - name: c
    id: 3
    x: 0
    y: 100
    addr: "02:00:00:00:00:03"
slots:
  - station: 1
    flags: "1,1,0,0"
  - station: 2
    flags: "0,0,1,0"
  - station: 3
    flags: "0,0,0,1"
flows:
  - name: ab
    src: a
    dst: b
    datarate: 8kbps
    framesize: 100
    flowmodel: const
    start: 1s
  - name: cast
    src: c
    dst: broadcast
    datarate: 1kbps
    framesize: 50
stoptime: 10s
`

func TestReadScenarioDesc(t *testing.T) {
	sd, err := ReadScenarioDesc("", true, []byte(scenarioYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sd.Validate(); err != nil {
		t.Fatalf("scenario does not validate: %v", err)
	}
	mc, err := sd.Mac.Transform()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.InterFrameTime != 200*time.Microsecond || mc.QueueMaxSize != 50 || mc.MaxRange != 400 {
		t.Fatalf("unexpected config %+v", mc)
	}
	if mc.QueueMaxDelay != DefaultQueueMaxDelay || mc.Mtu != DefaultMtu {
		t.Fatalf("defaults not applied: %+v", mc)
	}

	st, err := sd.SlotTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(st.SlotsOf(1), []int{0, 1}) || st.NumSlots() != 4 {
		t.Fatalf("unexpected slot table %s", st)
	}
	if sd.StopDuration() != 10*time.Second {
		t.Fatalf("stop time %v", sd.StopDuration())
	}
}

func TestScenarioValidateFindsProblems(t *testing.T) {
	sd := CreateScenarioDesc("broken")
	sd.AddStation("a", 0, 0, 0, 0)
	sd.AddStation("a", 0, 10, 0, 0)
	sd.AddFlow(FlowDesc{Name: "f", Src: "a", Dst: "nobody", DataRate: "quick"})
	sd.Mac.SlotTime = "soon"

	err := sd.Validate()
	if err == nil {
		t.Fatalf("broken scenario validated")
	}
	for _, part := range []string{"name a", "id 0", "nobody", "quick", "soon"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error does not mention %q: %v", part, err)
		}
	}
}

func TestScenarioDefaultSlots(t *testing.T) {
	sd := CreateScenarioDesc("even")
	for idx := 0; idx < 3; idx++ {
		sd.AddStation(string(rune('a'+idx)), idx, float64(idx), 0, 0)
	}
	sd.DefaultSlots = 6
	st, err := sd.SlotTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(st.SlotsOf(2), []int{4, 5}) {
		t.Fatalf("unexpected default table %s", st)
	}
}

func TestScenarioSlotFile(t *testing.T) {
	dir := t.TempDir()
	slotFile := filepath.Join(dir, "slots.txt")
	os.WriteFile(slotFile, []byte("0:1,0\n1:0,1\n"), 0o644)

	sd := CreateScenarioDesc("file")
	sd.SlotFile = slotFile
	st, err := sd.SlotTable()
	if err != nil || st.NumRows() != 2 {
		t.Fatalf("slot file not used: %v", err)
	}
}

func TestScenarioWriteRead(t *testing.T) {
	sd := CreateScenarioDesc("roundtrip")
	sd.AddStation("a", 0, 1, 2, 3)
	sd.AddStation("b", 1, 4, 5, 6)
	sd.AddSlots(0, []int{1, 0})
	sd.AddSlots(1, []int{0, 1})
	sd.AddFlow(FlowDesc{Name: "f", Src: "a", Dst: "b", DataRate: "1Mbps", FrameSize: 200})
	dir := t.TempDir()

	for _, name := range []string{"sd.yaml", "sd.json"} {
		filename := filepath.Join(dir, name)
		if err := sd.WriteToFile(filename); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		back, err := ReadScenarioDesc(filename, strings.HasSuffix(name, ".yaml"), nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !reflect.DeepEqual(back, sd) {
			t.Fatalf("%s changed the scenario: %+v", name, back)
		}
	}

	if err := sd.WriteToFile(filepath.Join(dir, "sd.txt")); err == nil {
		t.Fatalf("unknown extension accepted")
	}
	if _, err := ReadScenarioDesc(filepath.Join(dir, "missing.yaml"), true, nil); err == nil {
		t.Fatalf("missing file read")
	}
}

func TestDescribeMacConfig(t *testing.T) {
	mc := DefaultMacConfig()
	mc.InterFrameTime = 300 * time.Microsecond
	mc.TotalSlots = 12
	back, err := DescribeMacConfig(mc).Transform()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != mc {
		t.Fatalf("expected %+v, got %+v", mc, back)
	}
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	os.WriteFile(present, []byte("x"), 0o644)

	if ok, err := CheckReadableFiles([]string{present}); !ok {
		t.Fatalf("existing file reported unreadable: %v", err)
	}
	if ok, _ := CheckReadableFiles([]string{filepath.Join(dir, "absent")}); ok {
		t.Fatalf("absent file reported readable")
	}
	if ok, err := CheckOutputFiles([]string{filepath.Join(dir, "new.csv"), ""}); !ok {
		t.Fatalf("output in an existing directory refused: %v", err)
	}
	if ok, _ := CheckOutputFiles([]string{filepath.Join(dir, "nodir", "new.csv")}); ok {
		t.Fatalf("output in a missing directory accepted")
	}
}
