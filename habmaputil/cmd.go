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

// Package habmaputil provides the habmap command-line interface.
package habmaputil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/habmap"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// DefaultStages are the refinement steps of the Lake Superior habitat
// map: the UNET classification is combined in turn with LANDFIRE cover,
// CWMP wetlands, lake extent and bathymetry.
var DefaultStages = []map[string]string{
	{"Name": "landfire", "Sheet": "#0", "Layer": "landfire", "Output": "unet2",
		"CodeA": "UNETcode", "CodeB": "LANDFIREcode", "Target": "UNET2code", "Description": "UNET2desc"},
	{"Name": "wetlands", "Sheet": "#1", "Layer": "cwmp_wetlands_reclass", "Output": "unet3",
		"CodeA": "UNET2code", "CodeB": "CWMPcode", "Target": "UNET3code", "Description": "UNET3desc"},
	{"Name": "lake", "Sheet": "#2", "Layer": "lake", "Output": "unet4",
		"CodeA": "UNET3code", "CodeB": "LAKEcode", "Target": "UNET4code", "Description": "UNET4desc"},
	{"Name": "bathymetry", "Sheet": "#3", "Layer": "bath", "Output": "unet5",
		"CodeA": "UNET4code", "CodeB": "BATHcode", "Target": "UNET5code", "Description": "UNET5desc"},
}

func init() {
	// Options are the configuration options available to habmap.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Rules",
			usage: `
              Rules is the path to the Excel workbook holding one rule
              sheet per stage. It can contain environment variables.`,
			shorthand:  "r",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), sheetsCmd.Flags()},
		},
		{
			name: "Workspace",
			usage: `
              Workspace is the location of the raster store, in the form
              provider://path. Accepted providers are file, mem, gs and s3,
              for example file:///data/habitat or gs://bucket/habitat.`,
			shorthand:  "w",
			defaultVal: "file://.",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Seed",
			usage: `
              Seed is the name of the raster in the workspace that the
              first stage refines.`,
			defaultVal: "unet",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Stages",
			usage: `
              Stages lists the stages to run in order. Each stage has a Name,
              the rule Sheet (a sheet name, or #n for the sheet at position n),
              the attribute raster Layer, the rule columns CodeA, CodeB, Target
              and optionally Description, and optionally the Output raster name
              (default <Name>_classified). When given on the command line it
              must be a JSON list of objects.`,
			defaultVal: DefaultStages,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Only",
			usage: `
              Only restricts the run to the named stages. The input of each
              selected stage must already be in the workspace. Progress is not
              recorded for such runs.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "TileSize",
			usage: `
              TileSize is the maximum width and height of a tile, in cells.
              Stages whose rasters are larger are processed tile by tile and
              the tiles mosaicked. Zero processes each raster in one piece.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of tiles processed at once. Zero uses
              one worker per processor.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Fallback",
			usage: `
              Fallback sets the output for cells whose combined code no rule
              maps: nodata, passthrough (keep the combined code) or
              keepcurrent (keep the code from the previous stage).`,
			defaultVal: "nodata",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FailOnUnmatched",
			usage: `
              FailOnUnmatched stops the run when a stage finds combined codes
              that no rule maps instead of logging a warning.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ProgressFile",
			usage: `
              ProgressFile is where completed work is recorded so that an
              interrupted run can resume. Empty disables progress tracking.`,
			defaultVal: "habmap_progress.toml",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "restart",
			usage: `
              restart discards any saved progress before starting.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is a file that log messages are written to in addition
              to the standard output. Empty disables it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of logged messages: debug, info,
              warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("HABMAP")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case []map[string]string:
				b := bytes.NewBuffer(nil)
				json.NewEncoder(b).Encode(v)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(sheetsCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("habmap: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "habmap",
	Short: "A staged categorical raster fusion engine.",
	Long: `habmap refines a categorical habitat classification raster in stages.
Each stage combines the current classification with an attribute raster and
reclassifies every (classification, attribute) pair with the rules in one
sheet of an Excel workbook.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'HABMAP_var' where 'var' is
the name of the variable to be set. Many configuration variables are
additionally allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of habmap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("habmap v%s\n", habmap.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stages.",
	Long: `run runs every configured stage in order, reading the seed and attribute
rasters from the workspace and writing each stage's output back to it. If a
previous run was interrupted it resumes after the last completed tile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context(), cmd, Cfg)
	},
	DisableAutoGenTag: true,
}

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "List the rule sheets in the workbook.",
	Long: `sheets prints the position and name of each sheet in the rules workbook.
Stages can refer to a sheet by name or by position as #n.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Sheets(cmd.Context(), cmd, Cfg)
	},
	DisableAutoGenTag: true,
}
