/*
Copyright © 2019 the ETMap authors.
This file is part of ETMap.

ETMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ETMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ETMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package etmaputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/etmap"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ETMap.
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
			name: "ERA5File",
			usage: `
              ERA5File is the path to the NetCDF file of daily surface
              meteorology, for example from the ECMWF ERA5 reanalysis.
              It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first day to include in the calculation,
              in YYYYMMDD format. If empty, the calculation starts with
              the first day in the input file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the day after the last day to include in the
              calculation, in YYYYMMDD format. If empty, the calculation
              continues through the last day in the input file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "VarMap",
			usage: `
              VarMap maps the model input fields to the names of the
              NetCDF variables that hold them in ERA5File. Fields that
              are not specified keep their default names.`,
			defaultVal: etmap.ERA5VarNames(),
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "GridProj",
			usage: `
              GridProj is the Proj4 spatial reference definition of the
              data grid. The default assumes geographic coordinates.`,
			defaultVal: "+proj=longlat",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "RegionFile",
			usage: `
              RegionFile is the path to a shapefile or GeoJSON file
              holding the region of interest. Output cells whose centers
              are outside the region are set to NaN. If empty, the whole
              grid is output. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "ConstantsFile",
			usage: `
              ConstantsFile is the path to a TOML file overriding the
              default model constants (for example Albedo or WindHeight).
              Constants that are not specified keep their default values.
              It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired output shapefile
              location. It can include environment variables.`,
			defaultVal: "etmap_output.shp",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which model variables should be
              included in the output file. Each output variable is an
              expression that can combine the model variables PET and
              Days.`,
			defaultVal: map[string]string{"PET": "PET", "Days": "Days"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "NetCDFFile",
			usage: `
              NetCDFFile is the path where a NetCDF copy of the
              aggregated output should be written. If empty, no NetCDF
              copy is written. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "SummaryFile",
			usage: `
              SummaryFile is the path where an XLSX summary of the
              aggregated output should be written. If empty, no summary
              is written. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. If
              empty, the logfile will be saved in the same location as
              the OutputFile. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), dailyCmd.Flags()},
		},
		{
			name: "DailyOutputFile",
			usage: `
              DailyOutputFile is the path to the NetCDF file where the
              potential evapotranspiration field for each individual day
              will be written. It can include environment variables.`,
			defaultVal: "etmap_daily.nc",
			flagsets:   []*pflag.FlagSet{dailyCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ETMAP")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
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
	Root.AddCommand(dailyCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("etmap: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "etmap",
	Short: "A gridded potential evapotranspiration model.",
	Long: `ETMap calculates daily potential evapotranspiration from gridded surface
meteorology using the FAO-56 Penman-Monteith equation.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'ETMAP_var'
where 'var' is the name of the variable to be set. Many configuration
variables are additionally allowed to contain environment variables within
them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ETMap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ETMap v%s\n", etmap.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd calculates the mean potential evapotranspiration over the
// simulation period.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Calculate mean potential evapotranspiration.",
	Long: `run calculates potential evapotranspiration for each day of the
simulation period, averages the days, and writes the result to a shapefile.
A NetCDF copy of the average and an XLSX summary of its statistics can
additionally be requested with the NetCDFFile and SummaryFile options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		constants, err := readConstants(Cfg.GetString("ConstantsFile"))
		if err != nil {
			return err
		}
		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			outputVars,
			os.ExpandEnv(Cfg.GetString("ERA5File")),
			Cfg.GetString("StartDate"),
			Cfg.GetString("EndDate"),
			GetStringMapString("VarMap", Cfg),
			Cfg.GetString("GridProj"),
			os.ExpandEnv(Cfg.GetString("RegionFile")),
			constants,
			"", // No daily output.
			os.ExpandEnv(Cfg.GetString("NetCDFFile")),
			os.ExpandEnv(Cfg.GetString("SummaryFile")),
		)
	},
	DisableAutoGenTag: true,
}

// dailyCmd additionally saves the field calculated for each
// individual day.
var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Calculate and save daily potential evapotranspiration.",
	Long: `daily performs the same calculation as run but also writes the
potential evapotranspiration field for each individual day, before any
averaging or region clipping, to the NetCDF file given by DailyOutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		constants, err := readConstants(Cfg.GetString("ConstantsFile"))
		if err != nil {
			return err
		}
		dailyFile, err := checkDailyOutputFile(Cfg.GetString("DailyOutputFile"))
		if err != nil {
			return err
		}
		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			outputVars,
			os.ExpandEnv(Cfg.GetString("ERA5File")),
			Cfg.GetString("StartDate"),
			Cfg.GetString("EndDate"),
			GetStringMapString("VarMap", Cfg),
			Cfg.GetString("GridProj"),
			os.ExpandEnv(Cfg.GetString("RegionFile")),
			constants,
			dailyFile,
			os.ExpandEnv(Cfg.GetString("NetCDFFile")),
			os.ExpandEnv(Cfg.GetString("SummaryFile")),
		)
	},
	DisableAutoGenTag: true,
}
