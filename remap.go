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

package habmap

import "fmt"

// RuleRow maps one (CodeA, CodeB) pair to a target code.
type RuleRow struct {
	CodeA, CodeB int64
	Target       int64
	Description  string
}

// RuleTable holds the rule rows for one stage. Row order does not matter
// except that a later row for the same pair replaces an earlier one.
type RuleTable struct {
	Stage string
	Rows  []RuleRow
}

// Columns names the workbook columns that hold the parts of a rule row.
type Columns struct {
	CodeA, CodeB, Target, Description string
}

// Names returns the column names in row order, omitting an empty
// description column.
func (c Columns) Names() []string {
	o := []string{c.CodeA, c.CodeB, c.Target}
	if c.Description != "" {
		o = append(o, c.Description)
	}
	return o
}

// RemapTable maps composite codes to target codes for one stage.
// It is not modified after it is built and may be shared by any number of
// concurrent tiles.
type RemapTable struct {
	scale      int64
	m          map[int64]int64
	duplicates int
}

// BuildRemapTable encodes each row of rt with scale and maps the result
// to the row's target. When two rows share a pair the later one wins.
func BuildRemapTable(rt *RuleTable, scale int64) (*RemapTable, error) {
	if scale <= 0 {
		return nil, &ConfigurationError{Stage: rt.Stage, Reason: fmt.Sprintf("scaling factor %d is not positive", scale)}
	}
	t := &RemapTable{
		scale: scale,
		m:     make(map[int64]int64, len(rt.Rows)),
	}
	for i, row := range rt.Rows {
		if row.CodeA < 0 || row.CodeB < 0 {
			return nil, &ConfigurationError{Stage: rt.Stage, Reason: fmt.Sprintf(
				"rule row %d has a negative code (%d, %d)", i, row.CodeA, row.CodeB)}
		}
		if row.CodeB >= scale {
			return nil, &ConfigurationError{Stage: rt.Stage, Reason: fmt.Sprintf(
				"rule row %d code B %d is not below the scaling factor %d", i, row.CodeB, scale)}
		}
		if err := checkRange(row.CodeA, scale); err != nil {
			return nil, err
		}
		key := Encode(row.CodeA, row.CodeB, scale)
		if _, ok := t.m[key]; ok {
			t.duplicates++
		}
		t.m[key] = row.Target
	}
	return t, nil
}

// Len returns the number of distinct composite codes in the table.
func (t *RemapTable) Len() int { return len(t.m) }

// Duplicates returns the number of rows that replaced an earlier row
// for the same pair.
func (t *RemapTable) Duplicates() int { return t.duplicates }

// Scale returns the scaling factor the table was built with.
func (t *RemapTable) Scale() int64 { return t.scale }

// Lookup returns the target code for a composite code.
func (t *RemapTable) Lookup(code int64) (target int64, ok bool) {
	target, ok = t.m[code]
	return
}
