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

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestProgressTracker(t *testing.T) {
	dir, err := os.MkdirTemp("", "habmap_progress")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	p := &ProgressTracker{Path: filepath.Join(dir, "run", "progress.toml")}

	s, err := p.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s != FreshProgress() || !s.IsFresh() {
		t.Errorf("missing file should load as fresh, have %+v", s)
	}

	want := ProgressState{Stage: 2, Row: 14, Fingerprint: "abc123"}
	if err := p.Save(want); err != nil {
		t.Fatal(err)
	}
	have, err := p.Load()
	if err != nil {
		t.Fatal(err)
	}
	if have != want {
		t.Errorf("have %+v, want %+v", have, want)
	}

	want.Row = 15
	if err := p.Save(want); err != nil {
		t.Fatal(err)
	}
	if have, _ := p.Load(); have != want {
		t.Errorf("after overwrite: have %+v, want %+v", have, want)
	}
	entries, err := os.ReadDir(filepath.Dir(p.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}

	if err := p.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := p.Clear(); err != nil {
		t.Errorf("clearing twice: %v", err)
	}
	if s, _ := p.Load(); !s.IsFresh() {
		t.Errorf("after clear: %+v", s)
	}
}

func TestProgressCorruption(t *testing.T) {
	dir, err := os.MkdirTemp("", "habmap_progress")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	for name, content := range map[string]string{
		"garbage":  "Stage = = 3\n",
		"text row": "14\n",
		"type":     "Stage = \"two\"\nRow = 1\n",
		"stage":    "Stage = -1\nRow = 0\n",
		"row":      "Stage = 0\nRow = -5\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := (&ProgressTracker{Path: path}).Load()
			var pce *ProgressCorruptionError
			if !errors.As(err, &pce) {
				t.Errorf("want *ProgressCorruptionError, have %v", err)
			}
		})
	}
}

func TestSyncDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "habmap_progress")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err := syncDir(dir); err != nil {
		t.Errorf("syncing an existing directory: %v", err)
	}
	if runtime.GOOS == "windows" {
		return
	}
	if err := syncDir(filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("want a not-exist error for a missing directory, have %v", err)
	}
}
