package facts

import "strconv"

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the delta has no added or removed rows.
func (d Delta) Empty() bool {
	return d.Added.rowCount() == 0 && d.Removed.rowCount() == 0
}

func (t Tables) rowCount() int {
	return len(t.Modules) + len(t.Parameters) + len(t.Ports)
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Modules = diffModuleRows(from.Modules, to.Modules)
	out.Parameters = diffParameterRows(from.Parameters, to.Parameters)
	out.Ports = diffPortRows(from.Ports, to.Ports)

	return out
}

func emptyTables() Tables {
	return Tables{
		Modules:    []ModuleRow{},
		Parameters: []ParameterRow{},
		Ports:      []PortRow{},
	}
}

func diffModuleRows(from, to []ModuleRow) []ModuleRow {
	return diffRows(from, to, func(r ModuleRow) string {
		return r.Name + "|" + r.File + "|" + intKey(r.PortCount) + "|" + intKey(r.ParameterCount)
	})
}

func diffParameterRows(from, to []ParameterRow) []ParameterRow {
	return diffRows(from, to, func(r ParameterRow) string {
		return r.Module + "|" + r.Name + "|" + intKey(r.Value) + "|" + r.File
	})
}

// Port rows are keyed without the line number so that edits elsewhere in
// the file do not show up as interface changes.
func diffPortRows(from, to []PortRow) []PortRow {
	return diffRows(from, to, func(r PortRow) string {
		return r.Module + "|" + r.Name + "|" + r.Direction + "|" + intKey(r.Width) + "|" + r.WidthSource + "|" + intKey(r.Position) + "|" + r.File
	})
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]T, len(from))
	for _, row := range from {
		fromSet[key(row)] = row
	}
	var diff []T
	for _, row := range to {
		rowKey := key(row)
		if _, ok := fromSet[rowKey]; !ok {
			diff = append(diff, row)
		}
	}
	if diff == nil {
		diff = []T{}
	}
	return diff
}

func intKey(v int) string {
	return strconv.Itoa(v)
}
