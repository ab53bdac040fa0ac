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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/spatialmodel/habmap"
)

// getStages returns the stages configured under varName. The value may
// be a list of tables from a configuration file or, if it was set from a
// command line argument or environment variable, a JSON string.
func getStages(varName string, cfg *viper.Viper) ([]habmap.Stage, error) {
	var raw []map[string]string
	switch v := cfg.Get(varName).(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			break
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&raw); err != nil {
			return nil, &habmap.ConfigurationError{Reason: fmt.Sprintf("parsing %s: %v", varName, err)}
		}
	case []map[string]string:
		raw = v
	case []map[string]interface{}:
		for _, m := range v {
			raw = append(raw, cast.ToStringMapString(m))
		}
	case []interface{}:
		for i, e := range v {
			m, err := cast.ToStringMapStringE(e)
			if err != nil {
				return nil, &habmap.ConfigurationError{Reason: fmt.Sprintf("%s entry %d: %v", varName, i, err)}
			}
			raw = append(raw, m)
		}
	case nil:
	default:
		return nil, &habmap.ConfigurationError{Reason: fmt.Sprintf("invalid type for %s: %T", varName, v)}
	}
	if len(raw) == 0 {
		return nil, &habmap.ConfigurationError{Reason: "no stages are configured"}
	}

	stages := make([]habmap.Stage, len(raw))
	for i, m := range raw {
		get := func(key string) string {
			for k, v := range m {
				if strings.EqualFold(k, key) {
					return os.ExpandEnv(strings.TrimSpace(v))
				}
			}
			return ""
		}
		stages[i] = habmap.Stage{
			Name:   get("Name"),
			Sheet:  get("Sheet"),
			Layer:  get("Layer"),
			Output: get("Output"),
			Columns: habmap.Columns{
				CodeA:       get("CodeA"),
				CodeB:       get("CodeB"),
				Target:      get("Target"),
				Description: get("Description"),
			},
		}
		if stages[i].Sheet == "" {
			stages[i].Sheet = stages[i].Name
		}
	}
	return stages, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	o := make([]string, 0, len(s))
	for _, v := range s {
		if v = strings.TrimSpace(os.ExpandEnv(v)); v != "" {
			o = append(o, v)
		}
	}
	return o
}

// newLogger returns a logger writing to w and, if logFile is not empty,
// to that file. The returned function closes the file.
func newLogger(w io.Writer, logFile, level string) (*logrus.Logger, func() error, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, &habmap.ConfigurationError{Reason: fmt.Sprintf("log level: %v", err)}
	}
	l := logrus.New()
	l.Level = lvl
	l.Out = w
	if logFile == "" {
		return l, func() error { return nil }, nil
	}
	f, err := os.Create(os.ExpandEnv(logFile))
	if err != nil {
		return nil, nil, fmt.Errorf("habmap: problem creating log file: %v", err)
	}
	l.Out = io.MultiWriter(w, f)
	return l, f.Close, nil
}
