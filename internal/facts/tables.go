package facts

import (
	"sort"

	"github.com/robert-at-pretension-io/tbgen/internal/extractor"
)

// Tables is the relational view of extracted module interfaces.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Modules    []ModuleRow    `json:"modules"`
	Parameters []ParameterRow `json:"parameters"`
	Ports      []PortRow      `json:"ports"`
}

type ModuleRow struct {
	Name           string `json:"name"`
	File           string `json:"file"`
	PortCount      int    `json:"port_count"`
	ParameterCount int    `json:"parameter_count"`
}

type ParameterRow struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Value  int    `json:"value"`
	File   string `json:"file"`
}

type PortRow struct {
	Module      string `json:"module"`
	Name        string `json:"name"`
	Direction   string `json:"direction"`
	Width       int    `json:"width"`
	WidthSource string `json:"width_source"`
	Position    int    `json:"position"`
	File        string `json:"file"`
	Line        int    `json:"line"`
}

// Entry pairs an extracted interface with the file it came from.
type Entry struct {
	File      string
	Interface *extractor.ModuleInterface
}

// BuildTables converts extracted interfaces into the relational model.
// Rows are ordered by file, then declaration order within the file.
func BuildTables(entries []Entry) Tables {
	tables := emptyTables()

	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Interface != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })

	for _, e := range sorted {
		iface := e.Interface
		tables.Modules = append(tables.Modules, ModuleRow{
			Name:           iface.Name,
			File:           e.File,
			PortCount:      len(iface.Ports),
			ParameterCount: len(iface.Parameters),
		})

		for _, p := range iface.Parameters {
			tables.Parameters = append(tables.Parameters, ParameterRow{
				Module: iface.Name,
				Name:   p.Name,
				Value:  p.Value,
				File:   e.File,
			})
		}

		for i, p := range iface.Ports {
			tables.Ports = append(tables.Ports, PortRow{
				Module:      iface.Name,
				Name:        p.Name,
				Direction:   string(p.Direction),
				Width:       p.Width,
				WidthSource: string(p.WidthSource),
				Position:    i,
				File:        e.File,
				Line:        p.Line,
			})
		}
	}

	return tables
}
