// Package export writes database state to spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/edb/internal/ir"
)

// OtherSheet holds objects whose OID carries no connector prefix.
const OtherSheet = "other"

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// StateReader reads the live state at a timestamp. *edb.Database satisfies it.
type StateReader interface {
	HeadAt(ctx context.Context, t int64) ([]ir.Object, error)
}

// Summary describes a written workbook.
type Summary struct {
	Timestamp int64          `json:"timestamp"`
	Sheets    map[string]int `json:"sheets"` // rows per sheet, header excluded
}

// HeadAt writes the live state at t as XLSX to w.
func HeadAt(ctx context.Context, src StateReader, t int64, w io.Writer) (Summary, error) {
	objs, err := src.HeadAt(ctx, t)
	if err != nil {
		return Summary{}, fmt.Errorf("read state at %d: %w", t, err)
	}
	sum, err := WriteXLSX(w, objs)
	sum.Timestamp = t
	return sum, err
}

// WriteXLSX writes objects as a workbook with one sheet per domain, one row
// per object and one column per attribute key. The first three columns are
// oid, version and timestamp. Sheets are ordered by name.
func WriteXLSX(w io.Writer, objs []ir.Object) (Summary, error) {
	groups := groupByDomain(objs)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sum := Summary{Sheets: make(map[string]int, len(names))}
	for i, name := range names {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return Summary{}, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return Summary{}, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, groups[name]); err != nil {
			return Summary{}, err
		}
		sum.Sheets[name] = len(groups[name])
	}

	if err := f.Write(w); err != nil {
		return Summary{}, fmt.Errorf("write xlsx: %w", err)
	}
	return sum, nil
}

func writeSheet(f *excelize.File, sheet string, objs []ir.Object) error {
	keys := attributeKeys(objs)

	header := make([]any, 0, len(keys)+3)
	header = append(header, "oid", "version", "timestamp")
	for _, k := range keys {
		header = append(header, k)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("sheet %s header: %w", sheet, err)
	}

	for i, obj := range objs {
		row := make([]any, 0, len(header))
		row = append(row, obj.OID, obj.Version, obj.Timestamp)
		for _, k := range keys {
			row = append(row, cellValue(obj.Attributes[k]))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// cellValue keeps integers numeric and renders everything else as text.
// A missing attribute is an empty cell.
func cellValue(v ir.IRValue) any {
	switch val := v.(type) {
	case nil:
		return nil
	case ir.IRInt:
		return int64(val)
	default:
		return ir.FormatValue(v)
	}
}

func attributeKeys(objs []ir.Object) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, o := range objs {
		for k := range o.Attributes {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// groupByDomain buckets objects by the domain part of their OID. Each
// bucket keeps the input order.
func groupByDomain(objs []ir.Object) map[string][]ir.Object {
	groups := make(map[string][]ir.Object)
	for _, o := range objs {
		name := SheetName(o.OID)
		groups[name] = append(groups[name], o)
	}
	return groups
}

// SheetName returns the sheet an OID is exported to: the domain of its
// "domain+connector+instance/local" prefix, or OtherSheet.
func SheetName(oid string) string {
	prefix, _, found := strings.Cut(oid, "/")
	if !found {
		return OtherSheet
	}
	conn, err := ir.ParseConnectorID(prefix)
	if err != nil {
		return OtherSheet
	}
	return sanitizeSheetName(conn.Domain)
}

func sanitizeSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, "'")
	if name == "" {
		return OtherSheet
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}
