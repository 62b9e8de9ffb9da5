package tdma

// slot-table.go holds the static assignment of TDMA slots to stations.  A table is
// a rows x columns container of 0/1 flags, one row per station and one column per slot.
// Tables are built either by dividing the slots evenly among the stations or by
// parsing an assignment file whose lines look like
//
//	stationId:flag,flag,...,flag

import (
	"bufio"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrBadSlotFlag     = errors.New("slot flag must be 0 or 1")
	ErrSlotConflict    = errors.New("slot assigned to more than one station")
	ErrRaggedSlotTable = errors.New("slot rows have different lengths")
	ErrEmptySlotTable  = errors.New("slot table has no rows")
	ErrUnassignedSlot  = errors.New("slot has no owner")
	ErrSlotSyntax      = errors.New("malformed slot assignment line")
	ErrSlotRange       = errors.New("slot table index out of range")
)

// SlotRow gives the slot flags of one station
type SlotRow struct {
	StationID int   `json:"stationid" yaml:"stationid"`
	Flags     []int `json:"flags" yaml:"flags"`
}

// SlotTable is an ordered list of SlotRows sharing one slot count
type SlotTable struct {
	rows   []SlotRow
	nSlots int
}

// CreateSlotTable builds a table from an explicit ordered sequence of rows.
// Every flag must be 0 or 1 and every row must have the same number of flags.
// The rows are copied.
func CreateSlotTable(rows []SlotRow) (*SlotTable, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySlotTable
	}
	st := new(SlotTable)
	st.nSlots = len(rows[0].Flags)
	st.rows = make([]SlotRow, 0, len(rows))

	for _, row := range rows {
		if len(row.Flags) != st.nSlots {
			return nil, fmt.Errorf("station %d has %d flags, expected %d: %w",
				row.StationID, len(row.Flags), st.nSlots, ErrRaggedSlotTable)
		}
		for slot, flag := range row.Flags {
			if flag != 0 && flag != 1 {
				return nil, fmt.Errorf("station %d slot %d flag %d: %w", row.StationID, slot, flag, ErrBadSlotFlag)
			}
		}
		st.rows = append(st.rows, SlotRow{StationID: row.StationID, Flags: slices.Clone(row.Flags)})
	}
	return st, nil
}

// CreateDefaultSlotTable divides nSlots among nStations (ids 0..nStations-1).  Each
// station gets nSlots/nStations contiguous slots starting at i*(nSlots/nStations);
// the nSlots%nStations slots left over go one apiece to the first stations, in order,
// after the last contiguous block.
func CreateDefaultSlotTable(nStations, nSlots int) (*SlotTable, error) {
	if nStations <= 0 {
		return nil, ErrEmptySlotTable
	}
	if nSlots <= 0 {
		return nil, fmt.Errorf("default slot table needs a positive slot count, got %d", nSlots)
	}

	perStation := nSlots / nStations
	remainder := nSlots % nStations

	st := new(SlotTable)
	st.nSlots = nSlots
	st.rows = make([]SlotRow, nStations)
	for i := 0; i < nStations; i++ {
		flags := make([]int, nSlots)
		for j := i * perStation; j < (i+1)*perStation; j++ {
			flags[j] = 1
		}
		if i < remainder {
			flags[perStation*nStations+i] = 1
		}
		st.rows[i] = SlotRow{StationID: i, Flags: flags}
	}

	if err := st.CheckCoverage(); err != nil {
		return nil, err
	}
	return st, nil
}

// ParseSlotAssignment reads lines of the form stationId:flag,...,flag.  Each flag is
// exactly "0" or "1", without spaces.  Blank lines and lines starting with '#' are ignored.
func ParseSlotAssignment(rdr io.Reader) (*SlotTable, error) {
	rows := []SlotRow{}
	totalFlags := 0

	scanner := bufio.NewScanner(rdr)
	lineNo := 0
	for scanner.Scan() {
		lineNo += 1
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		idStr, flagStr, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("line %d %q: %w", lineNo, line, ErrSlotSyntax)
		}
		stationID, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("line %d station id %q: %w", lineNo, idStr, ErrSlotSyntax)
		}

		fields := strings.Split(flagStr, ",")
		flags := make([]int, 0, len(fields))
		for _, field := range fields {
			switch field {
			case "0":
				flags = append(flags, 0)
			case "1":
				flags = append(flags, 1)
			default:
				return nil, fmt.Errorf("line %d flag %q: %w", lineNo, field, ErrBadSlotFlag)
			}
		}
		totalFlags += len(flags)
		rows = append(rows, SlotRow{StationID: stationID, Flags: flags})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// the flag count has to spread evenly over the rows
	if len(rows) > 0 && totalFlags%len(rows) != 0 {
		return nil, fmt.Errorf("%d flags over %d rows: %w", totalFlags, len(rows), ErrRaggedSlotTable)
	}
	if len(rows) == 0 {
		return &SlotTable{}, nil
	}
	return CreateSlotTable(rows)
}

// ReadSlotAssignmentFile parses the named slot assignment file.  A file that cannot be
// opened is logged and produces a table with zero rows, together with the open error;
// such a table must not be used to build a network.
func ReadSlotAssignmentFile(filename string) (*SlotTable, error) {
	f, err := os.Open(filename)
	if err != nil {
		log.WithFields(log.Fields{"file": filename, "error": err}).Warn("cannot open slot assignment file")
		return &SlotTable{}, err
	}
	defer f.Close()
	return ParseSlotAssignment(f)
}

// NumRows is the number of stations listed
func (st *SlotTable) NumRows() int {
	return len(st.rows)
}

// NumSlots is the number of slot columns
func (st *SlotTable) NumSlots() int {
	return st.nSlots
}

// Row returns a copy of row idx
func (st *SlotTable) Row(idx int) (SlotRow, error) {
	if idx < 0 || idx >= len(st.rows) {
		return SlotRow{}, fmt.Errorf("row %d of %d: %w", idx, len(st.rows), ErrSlotRange)
	}
	row := st.rows[idx]
	return SlotRow{StationID: row.StationID, Flags: slices.Clone(row.Flags)}, nil
}

// Flag returns the flag at (row, slot)
func (st *SlotTable) Flag(row, slot int) (int, error) {
	if row < 0 || row >= len(st.rows) || slot < 0 || slot >= st.nSlots {
		return 0, fmt.Errorf("(%d,%d) in %dx%d table: %w", row, slot, len(st.rows), st.nSlots, ErrSlotRange)
	}
	return st.rows[row].Flags[slot], nil
}

// StationIDs lists the station of each row, in row order
func (st *SlotTable) StationIDs() []int {
	ids := make([]int, len(st.rows))
	for idx, row := range st.rows {
		ids[idx] = row.StationID
	}
	return ids
}

// SlotsOf returns, in increasing order, the slots flagged for stationID
func (st *SlotTable) SlotsOf(stationID int) []int {
	slots := []int{}
	for _, row := range st.rows {
		if row.StationID != stationID {
			continue
		}
		for slot, flag := range row.Flags {
			if flag == 1 && !slices.Contains(slots, slot) {
				slots = append(slots, slot)
			}
		}
	}
	slices.Sort(slots)
	return slots
}

// Owners returns the stations flagged at slot
func (st *SlotTable) Owners(slot int) []int {
	owners := []int{}
	if slot < 0 || slot >= st.nSlots {
		return owners
	}
	for _, row := range st.rows {
		if row.Flags[slot] == 1 {
			owners = append(owners, row.StationID)
		}
	}
	return owners
}

// Validate checks that no slot is flagged by more than one station
func (st *SlotTable) Validate() error {
	if len(st.rows) == 0 {
		return ErrEmptySlotTable
	}
	errs := []error{}
	for slot := 0; slot < st.nSlots; slot++ {
		owners := st.Owners(slot)
		if len(owners) > 1 {
			errs = append(errs, fmt.Errorf("slot %d owned by stations %v: %w", slot, owners, ErrSlotConflict))
		}
	}
	return ReportErrs(errs)
}

// Unassigned lists the slots no station owns
func (st *SlotTable) Unassigned() []int {
	gaps := []int{}
	for slot := 0; slot < st.nSlots; slot++ {
		if len(st.Owners(slot)) == 0 {
			gaps = append(gaps, slot)
		}
	}
	return gaps
}

// CheckCoverage requires every slot to have exactly one owner
func (st *SlotTable) CheckCoverage() error {
	if err := st.Validate(); err != nil {
		return err
	}
	gaps := st.Unassigned()
	if len(gaps) > 0 {
		return fmt.Errorf("slots %v: %w", gaps, ErrUnassignedSlot)
	}
	return nil
}

// Bind gives every slot flagged for stationID to grantee at the scheduler.  Each
// flagged slot is first checked against all other stations; a slot flagged by
// another station is an error and nothing is bound.
func (st *SlotTable) Bind(sched *SlotScheduler, stationID int, grantee Grantee) error {
	slots := st.SlotsOf(stationID)
	for _, slot := range slots {
		for _, owner := range st.Owners(slot) {
			if owner != stationID {
				return fmt.Errorf("slot %d claimed by stations %d and %d: %w", slot, stationID, owner, ErrSlotConflict)
			}
		}
	}
	for _, slot := range slots {
		sched.AddSlot(slot, grantee)
	}
	return nil
}

// String renders the table in assignment file format
func (st *SlotTable) String() string {
	var sb strings.Builder
	for _, row := range st.rows {
		flags := make([]string, len(row.Flags))
		for idx, flag := range row.Flags {
			flags[idx] = strconv.Itoa(flag)
		}
		fmt.Fprintf(&sb, "%d:%s\n", row.StationID, strings.Join(flags, ","))
	}
	return sb.String()
}
