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

package habmaputil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tealeg/xlsx"

	"github.com/spatialmodel/habmap"
	"github.com/spatialmodel/habmap/cloud"
	"github.com/spatialmodel/habmap/rasterio"
)

const nd = habmap.DefaultNoData

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "habmaputil")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// writeRules saves a workbook with an unused first sheet and one rule
// sheet named "cover".
func writeRules(t *testing.T, dir string) string {
	t.Helper()
	f := xlsx.NewFile()
	if _, err := f.AddSheet("readme"); err != nil {
		t.Fatal(err)
	}
	sheet, err := f.AddSheet("cover")
	if err != nil {
		t.Fatal(err)
	}
	row := sheet.AddRow()
	for _, h := range []string{"UNETcode", "COVcode", "NEWcode", "NEWdesc"} {
		row.AddCell().SetString(h)
	}
	for _, r := range [][3]int{{1, 0, 10}, {1, 1, 11}, {2, 1, 21}, {1, 2, 12}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetInt(v)
		}
		row.AddCell().SetString("class")
	}
	path := filepath.Join(dir, "rules.xlsx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

// seedWorkspace writes the seed and attribute rasters to the in-memory
// workspace at location.
func seedWorkspace(t *testing.T, location string) *rasterio.Store {
	t.Helper()
	ctx := context.Background()
	b, err := cloud.OpenBucket(ctx, location)
	if err != nil {
		t.Fatal(err)
	}
	s := rasterio.NewStore(b, "")
	for name, r := range map[string]*habmap.Raster{
		"unet": habmap.NewRasterFrom(nd, [][]int64{
			{1, 2, nd},
			{2, 1, 1},
		}),
		"cover": habmap.NewRasterFrom(nd, [][]int64{
			{0, 1, 0},
			{1, 0, 2},
		}),
	} {
		if err := s.Write(ctx, name, r); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

var testStages = []map[string]string{
	{"Name": "cover", "Sheet": "cover", "Layer": "cover", "Output": "out",
		"CodeA": "UNETcode", "CodeB": "COVcode", "Target": "NEWcode", "Description": "NEWdesc"},
}

func TestRun(t *testing.T) {
	dir := tempDir(t)
	rules := writeRules(t, dir)
	want := habmap.NewRasterFrom(nd, [][]int64{
		{10, 21, nd},
		{21, 10, 12},
	})

	for _, test := range []struct {
		name      string
		tileSize  int
		workspace string
	}{
		{name: "whole", tileSize: 0, workspace: "mem://run_whole"},
		{name: "tiled", tileSize: 2, workspace: "mem://run_tiled"},
	} {
		t.Run(test.name, func(t *testing.T) {
			s := seedWorkspace(t, test.workspace)
			progress := filepath.Join(dir, test.name+"_progress.toml")
			Cfg.Set("Rules", rules)
			Cfg.Set("Workspace", test.workspace)
			Cfg.Set("Stages", testStages)
			Cfg.Set("TileSize", test.tileSize)
			Cfg.Set("ProgressFile", progress)
			Cfg.Set("LogFile", filepath.Join(dir, test.name+".log"))
			buf := bytes.NewBuffer(nil)
			Root.SetOut(buf)
			Root.SetArgs([]string{"run"})
			if err := Root.Execute(); err != nil {
				t.Fatal(err)
			}
			have, err := s.Read(context.Background(), "out")
			if err != nil {
				t.Fatal(err)
			}
			if !have.Equal(want) {
				t.Errorf("have %v, want %v", have.Rows(), want.Rows())
			}
			names, err := s.List(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if want := []string{"cover", "out", "unet"}; !reflect.DeepEqual(names, want) {
				t.Errorf("workspace holds %v, want %v", names, want)
			}
			if _, err := os.Stat(progress); !os.IsNotExist(err) {
				t.Errorf("progress file should be removed after a complete run: %v", err)
			}
			if !strings.Contains(buf.String(), "run complete") {
				t.Errorf("log output missing completion message: %s", buf.String())
			}
			log, err := os.ReadFile(filepath.Join(dir, test.name+".log"))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(log), "run complete") {
				t.Errorf("log file missing completion message: %s", log)
			}
		})
	}
	Cfg.Set("LogFile", "")
}

func TestRunEnvironment(t *testing.T) {
	dir := tempDir(t)
	s := seedWorkspace(t, "mem://run_env")
	seed := habmap.NewRasterFrom(nd, [][]int64{
		{2, 2, 1},
		{1, nd, 2},
	})
	if err := s.Write(context.Background(), "fromenv", seed); err != nil {
		t.Fatal(err)
	}
	os.Setenv("HABMAP_SEED", "fromenv")
	defer os.Unsetenv("HABMAP_SEED")
	os.Setenv("HABMAP_FALLBACK", "keepcurrent")
	defer os.Unsetenv("HABMAP_FALLBACK")

	Cfg.Set("Rules", writeRules(t, dir))
	Cfg.Set("Workspace", "mem://run_env")
	Cfg.Set("Stages", testStages)
	Cfg.Set("TileSize", 0)
	Cfg.Set("ProgressFile", "")
	if have := Cfg.GetString("Seed"); have != "fromenv" {
		t.Fatalf("Seed = %q, want the environment value", have)
	}
	Root.SetOut(bytes.NewBuffer(nil))
	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	have, err := s.Read(context.Background(), "out")
	if err != nil {
		t.Fatal(err)
	}
	// (2, 0) has no rule and keeps its class under keepcurrent.
	want := habmap.NewRasterFrom(nd, [][]int64{
		{2, 21, 10},
		{11, nd, 2},
	})
	if !have.Equal(want) {
		t.Errorf("have %v, want %v", have.Rows(), want.Rows())
	}
}

func TestRunErrors(t *testing.T) {
	dir := tempDir(t)
	rules := writeRules(t, dir)
	seedWorkspace(t, "mem://run_errors")
	Cfg.Set("Rules", rules)
	Cfg.Set("Workspace", "mem://run_errors")
	Cfg.Set("Stages", testStages)
	Cfg.Set("TileSize", 0)
	Cfg.Set("ProgressFile", "")
	defer Cfg.Set("Fallback", "nodata")

	for _, test := range []struct {
		name, key string
		val       interface{}
	}{
		{name: "fallback", key: "Fallback", val: "guess"},
		{name: "no stages", key: "Stages", val: ""},
		{name: "bad stages", key: "Stages", val: "[{"},
		{name: "workspace", key: "Workspace", val: "ftp://nowhere"},
	} {
		t.Run(test.name, func(t *testing.T) {
			old := Cfg.Get(test.key)
			Cfg.Set(test.key, test.val)
			defer Cfg.Set(test.key, old)
			Root.SetOut(bytes.NewBuffer(nil))
			Root.SetArgs([]string{"run"})
			if err := Root.Execute(); err == nil {
				t.Error("expected an error")
			}
		})
	}

	t.Run("missing layer", func(t *testing.T) {
		Cfg.Set("Stages", `[{"Name": "cover", "Sheet": "cover", "Layer": "absent",
			"CodeA": "UNETcode", "CodeB": "COVcode", "Target": "NEWcode"}]`)
		defer Cfg.Set("Stages", testStages)
		Root.SetOut(bytes.NewBuffer(nil))
		Root.SetArgs([]string{"run"})
		err := Root.Execute()
		se, ok := err.(*habmap.StageError)
		if !ok {
			t.Fatalf("have %v (%T), want *habmap.StageError", err, err)
		}
		if se.Index != 0 || se.Name != "cover" {
			t.Errorf("stage error names %d (%s)", se.Index, se.Name)
		}
	})
}

func TestGetStages(t *testing.T) {
	os.Setenv("HABMAP_TEST_LAYER", "landcover")
	defer os.Unsetenv("HABMAP_TEST_LAYER")
	want := []habmap.Stage{{
		Name:   "lf",
		Sheet:  "lf",
		Layer:  "landcover",
		Output: "",
		Columns: habmap.Columns{
			CodeA: "A", CodeB: "B", Target: "T",
		},
	}}
	for _, test := range []struct {
		name string
		val  interface{}
	}{
		{name: "json", val: `[{"Name": "lf", "Layer": "$HABMAP_TEST_LAYER", "CodeA": "A", "CodeB": "B", "Target": "T"}]`},
		{name: "table", val: []interface{}{
			map[string]interface{}{"name": "lf", "layer": "$HABMAP_TEST_LAYER", "codea": "A", "codeb": "B", "target": "T"},
		}},
	} {
		t.Run(test.name, func(t *testing.T) {
			Cfg.Set("TestStages", test.val)
			have, err := getStages("TestStages", Cfg)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(have, want) {
				t.Errorf("have %+v, want %+v", have, want)
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		Cfg.Set("TestStages", DefaultStages)
		have, err := getStages("TestStages", Cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != 4 || have[3].Output != "unet5" || have[0].Columns.CodeB != "LANDFIREcode" {
			t.Errorf("unexpected default stages: %+v", have)
		}
	})
}

func TestSheets(t *testing.T) {
	dir := tempDir(t)
	Cfg.Set("Rules", writeRules(t, dir))
	buf := bytes.NewBuffer(nil)
	Root.SetOut(buf)
	Root.SetArgs([]string{"sheets"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "#0\treadme\n#1\tcover\n"; buf.String() != want {
		t.Errorf("have %q, want %q", buf.String(), want)
	}
}

func TestVersion(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	Root.SetOut(buf)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "habmap v" + habmap.Version + "\n"; buf.String() != want {
		t.Errorf("have %q, want %q", buf.String(), want)
	}
}
