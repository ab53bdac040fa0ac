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

package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kr/pretty"
	"github.com/tealeg/xlsx"

	"github.com/spatialmodel/habmap"
)

var testColumns = habmap.Columns{
	CodeA:       "UNET_code",
	CodeB:       "LANDFIRE_code",
	Target:      "New_code",
	Description: "Description",
}

// writeWorkbook saves a workbook with the given sheets to a temporary
// directory and returns its path.
func writeWorkbook(t *testing.T, sheets map[string][][]interface{}, order ...string) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range order {
		sheet, err := f.AddSheet(name)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range sheets[name] {
			row := sheet.AddRow()
			for _, v := range r {
				cell := row.AddCell()
				switch v := v.(type) {
				case int:
					cell.SetInt(v)
				case float64:
					cell.SetFloat(v)
				case string:
					cell.SetString(v)
				}
			}
		}
	}
	dir, err := os.MkdirTemp("", "habmap_rules")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "rules.xlsx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeWorkbook(t, map[string][][]interface{}{
		"notes": {{"nothing to see"}},
		"landfire": {
			{},
			{"UNET_code", "LANDFIRE_code", "Description", "New_code"},
			{1, 0, "forest", 100},
			{1, 1, "forest wetland", 101},
			{"", "", "", ""},
			{2, 0, "field", 200},
			{"n/a", 1, "bad row", 201},
			{2, 0, "field again", 210},
		},
	}, "notes", "landfire")

	want := &habmap.RuleTable{
		Stage: "landfire",
		Rows: []habmap.RuleRow{
			{CodeA: 1, CodeB: 0, Target: 100, Description: "forest"},
			{CodeA: 1, CodeB: 1, Target: 101, Description: "forest wetland"},
			{CodeA: 2, CodeB: 0, Target: 200, Description: "field"},
			{CodeA: 2, CodeB: 0, Target: 210, Description: "field again"},
		},
	}
	w := New(path)
	for _, sheet := range []string{"landfire", "#1"} {
		t.Run(sheet, func(t *testing.T) {
			rt, err := w.Load(context.Background(), sheet, testColumns)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(rt, want) {
				t.Errorf("rule table differs: %v", pretty.Diff(rt, want))
			}
		})
	}

	t.Run("sheets", func(t *testing.T) {
		names, err := w.Sheets(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"notes", "landfire"}; !reflect.DeepEqual(names, want) {
			t.Errorf("have %v, want %v", names, want)
		}
	})
}

func TestLoadErrors(t *testing.T) {
	path := writeWorkbook(t, map[string][][]interface{}{
		"fraction": {
			{"UNET_code", "LANDFIRE_code", "New_code", "Description"},
			{1.5, 0, 100, "x"},
		},
		"negative": {
			{"UNET_code", "LANDFIRE_code", "New_code", "Description"},
			{1, -1, 100, "x"},
		},
		"columns": {
			{"UNET_code", "New_code"},
			{1, 100},
		},
		"huge": {
			{"UNET_code", "LANDFIRE_code", "New_code", "Description"},
			{1, 0, "10000000000000000000", "x"},
		},
		"hugenegative": {
			{"UNET_code", "LANDFIRE_code", "New_code", "Description"},
			{1, 0, "-1e19", "x"},
		},
		"twotothe63": {
			{"UNET_code", "LANDFIRE_code", "New_code", "Description"},
			{"9223372036854775808", 0, 1, "x"},
		},
		"empty": {},
	}, "fraction", "negative", "columns", "huge", "hugenegative", "twotothe63", "empty")

	tests := []struct {
		path, sheet string
	}{
		{path, "fraction"},
		{path, "negative"},
		{path, "columns"},
		{path, "huge"},
		{path, "hugenegative"},
		{path, "twotothe63"},
		{path, "empty"},
		{path, "missing"},
		{path, "#7"},
		{path, "#x"},
		{filepath.Join(filepath.Dir(path), "missing.xlsx"), "fraction"},
	}
	for _, test := range tests {
		t.Run(test.sheet, func(t *testing.T) {
			_, err := New(test.path).Load(context.Background(), test.sheet, testColumns)
			var rle *habmap.RuleLoadError
			if !errors.As(err, &rle) {
				t.Fatalf("want *habmap.RuleLoadError, have %v", err)
			}
			if rle.Sheet != test.sheet {
				t.Errorf("error sheet: have %q, want %q", rle.Sheet, test.sheet)
			}
		})
	}
}

func TestNegativeTarget(t *testing.T) {
	path := writeWorkbook(t, map[string][][]interface{}{
		"s": {
			{"UNET_code", "LANDFIRE_code", "New_code"},
			{3, 4, -9},
		},
	}, "s")
	cols := testColumns
	cols.Description = ""
	rt, err := New(path).Load(context.Background(), "s", cols)
	if err != nil {
		t.Fatal(err)
	}
	want := []habmap.RuleRow{{CodeA: 3, CodeB: 4, Target: -9}}
	if !reflect.DeepEqual(rt.Rows, want) {
		t.Errorf("have %+v, want %+v", rt.Rows, want)
	}
}
