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
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/BurntSushi/toml"
)

// ProgressState records how far a pipeline run has got.
type ProgressState struct {
	// Stage is the index of the stage in progress. All earlier stages
	// have their outputs persisted.
	Stage int

	// Row is the index of the last tile of Stage whose output is
	// persisted, or -1 if there is none.
	Row int

	// Fingerprint identifies the configuration the state was saved
	// under. A state with a different fingerprint cannot be resumed.
	Fingerprint string
}

// FreshProgress is the state of a run that has not started.
func FreshProgress() ProgressState { return ProgressState{Stage: 0, Row: -1} }

// IsFresh reports whether s is the state of a run that has not started.
func (s ProgressState) IsFresh() bool { return s.Stage == 0 && s.Row == -1 }

// ProgressTracker keeps a ProgressState in a TOML file.
type ProgressTracker struct {
	Path string
}

// Load reads the saved state. If the file does not exist the fresh state
// is returned. A file that cannot be decoded, or that holds impossible
// values, gives a *ProgressCorruptionError.
func (p *ProgressTracker) Load() (ProgressState, error) {
	b, err := os.ReadFile(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return FreshProgress(), nil
	} else if err != nil {
		return ProgressState{}, &ProgressCorruptionError{Path: p.Path, Reason: "reading", Err: err}
	}
	var s ProgressState
	if _, err := toml.Decode(string(b), &s); err != nil {
		return ProgressState{}, &ProgressCorruptionError{Path: p.Path, Reason: "decoding", Err: err}
	}
	if s.Stage < 0 {
		return ProgressState{}, &ProgressCorruptionError{Path: p.Path,
			Reason: fmt.Sprintf("stage index %d is negative", s.Stage)}
	}
	if s.Row < -1 {
		return ProgressState{}, &ProgressCorruptionError{Path: p.Path,
			Reason: fmt.Sprintf("row index %d is less than -1", s.Row)}
	}
	return s, nil
}

// Save atomically replaces the saved state with s: the record is written
// to a temporary file in the same directory and renamed over the target,
// so a reader sees either the old or the new state.
func (p *ProgressTracker) Save(s ProgressState) error {
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("habmap: saving progress: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".progress-*")
	if err != nil {
		return fmt.Errorf("habmap: saving progress: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	w := bufio.NewWriter(tmp)
	if err := toml.NewEncoder(w).Encode(s); err != nil {
		cleanup()
		return fmt.Errorf("habmap: encoding progress: %w", err)
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("habmap: saving progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("habmap: saving progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("habmap: saving progress: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("habmap: saving progress: %w", err)
	}
	return syncDir(dir)
}

// Clear removes the saved state. It is not an error if there is none.
func (p *ProgressTracker) Clear() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("habmap: clearing progress: %w", err)
	}
	return nil
}

// syncDir makes a rename in dir durable. Windows cannot sync a directory,
// and some file systems reject it with EINVAL; neither is an error.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("habmap: syncing progress directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return fmt.Errorf("habmap: syncing progress directory: %w", err)
	}
	return nil
}
