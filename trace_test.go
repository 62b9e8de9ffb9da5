package tdma

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTraceLines(t *testing.T) {
	tk := newTestKernel()
	a, b, _ := macPair(tk, 1100*time.Microsecond)
	tm := CreateTraceManager("lines", true, tk)
	var out bytes.Buffer
	tm.SetWriter(&out)
	a.AddObserver(tm)
	b.AddObserver(tm)

	pckt := CreatePacketOfSize(1000)
	a.Enqueue(pckt, StationAddress(2))
	tk.RunUntil(time.Millisecond)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 trace lines, got %q", out.String())
	}
	wantTx := "t 0.000727273 /NodeList/1/DeviceList/0/$tdma.NetDevice/Mac/MacTx " + pckt.String()
	if lines[0] != wantTx {
		t.Fatalf("expected %q, got %q", wantTx, lines[0])
	}
	if !strings.HasPrefix(lines[1], "r 0.000728273 /NodeList/2/DeviceList/0/$tdma.NetDevice/Mac/MacRx ") {
		t.Fatalf("unexpected receive line %q", lines[1])
	}
}

func TestTraceIgnoresPromiscAndInactive(t *testing.T) {
	tk := newTestKernel()
	tm := CreateTraceManager("quiet", false, tk)
	tm.AddTrace(0, "t", "ctx", CreatePacketOfSize(1))
	if len(tm.Records) != 0 {
		t.Fatalf("inactive manager kept a record")
	}
	if tm.WriteToFile(filepath.Join(t.TempDir(), "trace.txt")) {
		t.Fatalf("inactive manager wrote a file")
	}

	tm = CreateTraceManager("promisc", true, tk)
	_, b, _ := macPair(tk, 1100*time.Microsecond)
	tm.MacEvent(MacPromiscRx, b, CreatePacketOfSize(1))
	if len(tm.Records) != 0 {
		t.Fatalf("promiscuous receive was traced")
	}
	tm.MacEvent(MacRxDrop, b, CreatePacketOfSize(1))
	if len(tm.Records) != 1 || tm.Records[0].Op != "d" {
		t.Fatalf("expected one drop record, got %v", tm.Records)
	}
}

func TestTraceWriteToFile(t *testing.T) {
	tk := newTestKernel()
	tm := CreateTraceManager("files", true, tk)
	tm.AddName(1, "wifi1", "station")
	tm.AddTrace(1500*time.Millisecond, "t", TraceContext(1, 0, MacTx), CreatePacketOfSize(3))
	dir := t.TempDir()

	jsonFile := filepath.Join(dir, "trace.json")
	if !tm.WriteToFile(jsonFile) {
		t.Fatalf("json trace not written")
	}
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		t.Fatalf("cannot read %s: %v", jsonFile, err)
	}
	var back TraceManager
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("cannot parse trace: %v", err)
	}
	if back.RunID != tm.RunID || len(back.Records) != 1 || back.Records[0].Time != 1.5 {
		t.Fatalf("trace changed on the way through json: %+v", back)
	}
	if back.NameByID[1].Name != "wifi1" {
		t.Fatalf("names lost: %v", back.NameByID)
	}

	txtFile := filepath.Join(dir, "trace.tr")
	if !tm.WriteToFile(txtFile) {
		t.Fatalf("ascii trace not written")
	}
	data, _ = os.ReadFile(txtFile)
	if !strings.HasPrefix(string(data), "t 1.5 /NodeList/1/DeviceList/0/$tdma.NetDevice/Mac/MacTx uid=") {
		t.Fatalf("unexpected ascii trace %q", data)
	}
}

func TestTraceDuplicateName(t *testing.T) {
	tm := CreateTraceManager("dup", true, newTestKernel())
	tm.AddName(1, "a", "station")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a duplicated id")
		}
	}()
	tm.AddName(1, "b", "station")
}
