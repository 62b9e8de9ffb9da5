package tdma

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestCreateSlotTable(t *testing.T) {
	st, err := CreateSlotTable([]SlotRow{
		{StationID: 1, Flags: []int{1, 1, 0}},
		{StationID: 2, Flags: []int{0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.NumRows() != 2 || st.NumSlots() != 3 {
		t.Fatalf("expected 2x3 table, got %dx%d", st.NumRows(), st.NumSlots())
	}
	if got := st.SlotsOf(1); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("station 1 slots: got %v", got)
	}
	if got := st.Owners(2); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("slot 2 owners: got %v", got)
	}
	if err := st.CheckCoverage(); err != nil {
		t.Fatalf("expected full coverage, got %v", err)
	}
}

func TestCreateSlotTableRejects(t *testing.T) {
	tests := []struct {
		name string
		rows []SlotRow
		want error
	}{
		{"empty", nil, ErrEmptySlotTable},
		{"bad flag", []SlotRow{{StationID: 0, Flags: []int{1, 2}}}, ErrBadSlotFlag},
		{"ragged", []SlotRow{{StationID: 0, Flags: []int{1, 0}}, {StationID: 1, Flags: []int{0}}}, ErrRaggedSlotTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateSlotTable(tt.rows)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSlotTableCopiesRows(t *testing.T) {
	flags := []int{1, 0}
	st, err := CreateSlotTable([]SlotRow{{StationID: 0, Flags: flags}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flags[1] = 1
	if f, _ := st.Flag(0, 1); f != 0 {
		t.Fatalf("table changed with caller's slice")
	}
}

func TestDefaultSlotTable(t *testing.T) {
	st, err := CreateDefaultSlotTable(3, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int][]int{0: {0, 1, 6}, 1: {2, 3}, 2: {4, 5}}
	for station, slots := range want {
		if got := st.SlotsOf(station); !reflect.DeepEqual(got, slots) {
			t.Errorf("station %d: expected %v, got %v", station, slots, got)
		}
	}
	if len(st.Unassigned()) != 0 {
		t.Fatalf("unassigned slots %v", st.Unassigned())
	}
}

func TestDefaultSlotTableEvenSplit(t *testing.T) {
	st, err := CreateDefaultSlotTable(2, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.String(); got != "0:1,1,0,0\n1:0,0,1,1\n" {
		t.Fatalf("unexpected table %q", got)
	}
}

func TestFlagBounds(t *testing.T) {
	st, _ := CreateDefaultSlotTable(2, 2)
	if _, err := st.Flag(2, 0); !errors.Is(err, ErrSlotRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := st.Flag(0, -1); !errors.Is(err, ErrSlotRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := st.Row(5); !errors.Is(err, ErrSlotRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestParseSlotAssignment(t *testing.T) {
	input := `# two stations, three slots
1:1,1,0

2:0,0,1
`
	st, err := ParseSlotAssignment(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(st.StationIDs(), []int{1, 2}) {
		t.Fatalf("unexpected station ids %v", st.StationIDs())
	}
	if got := st.SlotsOf(2); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("station 2 slots: got %v", got)
	}

	// rendering and parsing again gives the same table
	again, err := ParseSlotAssignment(strings.NewReader(st.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.String() != st.String() {
		t.Fatalf("round trip changed table: %q vs %q", again.String(), st.String())
	}
}

func TestParseSlotAssignmentErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"no colon", "1 1,0", ErrSlotSyntax},
		{"bad id", "x:1,0", ErrSlotSyntax},
		{"bad flag", "1:1,3", ErrBadSlotFlag},
		{"spaced flag", "1:1, 0", ErrBadSlotFlag},
		{"padded flag", "1: 1,0", ErrBadSlotFlag},
		{"uneven count", "1:1,0\n2:0,1,1", ErrRaggedSlotTable},
		{"ragged rows", "1:1\n2:0,1,1", ErrRaggedSlotTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSlotAssignment(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReadSlotAssignmentFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "slots.txt")
	if err := os.WriteFile(filename, []byte("0:1,0\n1:0,1\n"), 0o644); err != nil {
		t.Fatalf("cannot write %s: %v", filename, err)
	}
	st, err := ReadSlotAssignmentFile(filename)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", st.NumRows())
	}

	st, err = ReadSlotAssignmentFile(filepath.Join(dir, "missing.txt"))
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
	if st == nil || st.NumRows() != 0 {
		t.Fatalf("expected an empty table for a missing file")
	}
}

func TestValidateConflict(t *testing.T) {
	st, err := CreateSlotTable([]SlotRow{
		{StationID: 0, Flags: []int{1, 1}},
		{StationID: 1, Flags: []int{0, 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.Validate(); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCheckCoverageGap(t *testing.T) {
	st, _ := CreateSlotTable([]SlotRow{{StationID: 0, Flags: []int{1, 0, 1}}})
	if err := st.Validate(); err != nil {
		t.Fatalf("gaps are not conflicts: %v", err)
	}
	if err := st.CheckCoverage(); !errors.Is(err, ErrUnassignedSlot) {
		t.Fatalf("expected unassigned slot error, got %v", err)
	}
	if !reflect.DeepEqual(st.Unassigned(), []int{1}) {
		t.Fatalf("unexpected gaps %v", st.Unassigned())
	}
}

type nullGrantee struct {
	grants int
}

func (ng *nullGrantee) StartTransmission(budget time.Duration) {
	ng.grants += 1
}

func TestBind(t *testing.T) {
	tk := newTestKernel()
	sched := CreateSlotScheduler(tk)
	sched.SetTotalSlotsAllowed(3)

	st, _ := CreateSlotTable([]SlotRow{
		{StationID: 1, Flags: []int{1, 1, 0}},
		{StationID: 2, Flags: []int{0, 1, 1}},
	})
	g1 := &nullGrantee{}
	if err := st.Bind(sched, 1, g1); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict binding station 1, got %v", err)
	}
	if _, present := sched.Owner(0); present {
		t.Fatalf("a failed bind must not add any slot")
	}

	st, _ = CreateSlotTable([]SlotRow{
		{StationID: 1, Flags: []int{1, 1, 0}},
		{StationID: 2, Flags: []int{0, 0, 1}},
	})
	if err := st.Bind(sched, 1, g1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, slot := range []int{0, 1} {
		if owner, _ := sched.Owner(slot); owner != Grantee(g1) {
			t.Fatalf("slot %d not bound to station 1", slot)
		}
	}
	if _, present := sched.Owner(2); present {
		t.Fatalf("slot 2 bound without being asked")
	}
}
