/*
Copyright © 2025 the habmap authors.
This file is part of habmap.

habmap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

habmap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with habmap.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package rules reads stage rule tables from Microsoft Excel workbooks.
package rules

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx"

	"github.com/spatialmodel/habmap"
)

// workbookCache holds previously opened workbooks so that each file is
// only read once.
var workbookCache *requestcache.Cache

var loadWorkbookCacheOnce sync.Once

func openWorkbook(ctx context.Context, path string) (*xlsx.File, error) {
	loadWorkbookCacheOnce.Do(func() {
		workbookCache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			return xlsx.OpenFile(req.(string))
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(100))
	})
	r := workbookCache.NewRequest(ctx, path, path)
	f, err := r.Result()
	if err != nil {
		return nil, err
	}
	return f.(*xlsx.File), nil
}

// Workbook is a rules workbook with one sheet per stage. The first
// non-blank row of a sheet holds the column names and each following
// row holds one rule.
type Workbook struct {
	Path string

	// Log receives warnings about skipped rows. It defaults to the
	// logrus standard logger.
	Log logrus.FieldLogger
}

// New returns the workbook at path.
func New(path string) *Workbook { return &Workbook{Path: path} }

func (w *Workbook) log() logrus.FieldLogger {
	if w.Log == nil {
		return logrus.StandardLogger()
	}
	return w.Log
}

// Sheets returns the names of the sheets in the workbook, in order.
func (w *Workbook) Sheets(ctx context.Context) ([]string, error) {
	f, err := openWorkbook(ctx, w.Path)
	if err != nil {
		return nil, &habmap.RuleLoadError{Path: w.Path, Err: err}
	}
	names := make([]string, len(f.Sheets))
	for i, s := range f.Sheets {
		names[i] = s.Name
	}
	return names, nil
}

// sheet finds a sheet by name or, if id has the form "#n", by its
// zero-based position in the workbook.
func (w *Workbook) sheet(f *xlsx.File, id string) (*xlsx.Sheet, error) {
	if strings.HasPrefix(id, "#") {
		n, err := strconv.Atoi(id[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid sheet position %q", id)
		}
		if n < 0 || n >= len(f.Sheets) {
			return nil, fmt.Errorf("sheet position %d is out of range; the workbook has %d sheets", n, len(f.Sheets))
		}
		return f.Sheets[n], nil
	}
	s, ok := f.Sheet[id]
	if !ok {
		return nil, fmt.Errorf("no sheet named %q", id)
	}
	return s, nil
}

// Load reads the rule table in sheet, locating the columns named by
// cols in the header row. Blank rows are skipped. Rows whose codes are
// not numbers are skipped with a warning. Rows with fractional codes, or
// with negative class or attribute codes, make the table ambiguous and
// cause a *habmap.RuleLoadError, as do a missing file, sheet or column.
func (w *Workbook) Load(ctx context.Context, sheet string, cols habmap.Columns) (*habmap.RuleTable, error) {
	loadErr := func(err error) error {
		return &habmap.RuleLoadError{Path: w.Path, Sheet: sheet, Err: err}
	}
	f, err := openWorkbook(ctx, w.Path)
	if err != nil {
		return nil, loadErr(err)
	}
	s, err := w.sheet(f, sheet)
	if err != nil {
		return nil, loadErr(err)
	}

	header := -1
	for j, row := range s.Rows {
		if !blank(row) {
			header = j
			break
		}
	}
	if header < 0 {
		return nil, loadErr(fmt.Errorf("sheet %q is empty", s.Name))
	}
	index, err := columnIndex(s.Rows[header], cols)
	if err != nil {
		return nil, loadErr(err)
	}

	rt := &habmap.RuleTable{Stage: s.Name}
	log := w.log().WithFields(logrus.Fields{"workbook": w.Path, "sheet": s.Name})
	for j := header + 1; j < len(s.Rows); j++ {
		row := s.Rows[j]
		if blank(row) {
			continue
		}
		var (
			rr     habmap.RuleRow
			skip   bool
			fields = []struct {
				col string
				v   *int64
				neg bool
			}{
				{cols.CodeA, &rr.CodeA, false},
				{cols.CodeB, &rr.CodeB, false},
				{cols.Target, &rr.Target, true},
			}
		)
		for _, fld := range fields {
			text := cellValue(row, index[fld.col])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				// Spreadsheet row numbers are one-based.
				log.Warnf("rules: skipping row %d: %s %q is not a number", j+1, fld.col, text)
				skip = true
				break
			}
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return nil, loadErr(fmt.Errorf("row %d: %s %v is not an integer", j+1, fld.col, v))
			}
			// float64(math.MaxInt64) rounds up to 2^63.
			if v >= math.MaxInt64 || v < math.MinInt64 {
				return nil, loadErr(fmt.Errorf("row %d: %s %v does not fit in 64 bits", j+1, fld.col, v))
			}
			if v < 0 && !fld.neg {
				return nil, loadErr(fmt.Errorf("row %d: %s %v is negative", j+1, fld.col, v))
			}
			*fld.v = int64(v)
		}
		if skip {
			continue
		}
		if cols.Description != "" {
			rr.Description = cellValue(row, index[cols.Description])
		}
		rt.Rows = append(rt.Rows, rr)
	}
	log.WithField("rows", len(rt.Rows)).Debug("rules: loaded rule table")
	return rt, nil
}

// columnIndex maps each column name in cols to its position in the
// header row. Names are matched ignoring case and surrounding space.
func columnIndex(header *xlsx.Row, cols habmap.Columns) (map[string]int, error) {
	index := make(map[string]int)
	for _, name := range cols.Names() {
		found := false
		for i, c := range header.Cells {
			if strings.EqualFold(strings.TrimSpace(c.Value), strings.TrimSpace(name)) {
				index[name] = i
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return index, nil
}

func cellValue(row *xlsx.Row, i int) string {
	if i >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[i].Value)
}

func blank(row *xlsx.Row) bool {
	if row == nil {
		return true
	}
	for _, c := range row.Cells {
		if strings.TrimSpace(c.Value) != "" {
			return false
		}
	}
	return true
}
