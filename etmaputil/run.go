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
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spatialmodel/etmap"
	"github.com/spf13/cobra"
)

// Run calculates potential evapotranspiration for each day of the
// simulation period and writes the aggregated results.
//
// CobraCommand is the cobra.Command instance where Run is called from.
//
// LogFile is the path to the desired logfile location.
//
// OutputFile is the path to the desired output shapefile location.
//
// OutputVariables specifies which model variables should be included
// in the output file.
//
// ERA5File is the path to the NetCDF file of daily surface meteorology.
//
// StartDate and EndDate delimit the days to include in the calculation,
// in YYYYMMDD format; StartDate is inclusive and EndDate is exclusive.
// Either can be empty, in which case the window extends to the
// corresponding end of the input file.
//
// VarMap maps the model input fields to the NetCDF variable names that
// hold them in ERA5File.
//
// GridProj is the Proj4 spatial reference of the data grid.
//
// RegionFile is the path to a shapefile or GeoJSON file holding the
// region of interest; aggregated output outside the region is set to
// NaN. It is ignored if it is empty.
//
// Constants holds the physical constants of the calculation.
//
// DailyOutputFile is the path to a NetCDF file where the field
// calculated for each individual day will be written. It is ignored if
// it is empty.
//
// NetCDFFile is the path where a NetCDF copy of the aggregated output
// will be written. It is ignored if it is empty.
//
// SummaryFile is the path where an XLSX summary of the aggregated
// output will be written. It is ignored if it is empty.
func Run(CobraCommand *cobra.Command, LogFile, OutputFile string, OutputVariables map[string]string,
	ERA5File, StartDate, EndDate string, VarMap map[string]string, GridProj, RegionFile string,
	Constants etmap.PETConstants, DailyOutputFile, NetCDFFile, SummaryFile string) error {

	startTime := time.Now()

	// Start a function to receive and print log messages.
	logfile, err := os.Create(LogFile)
	if err != nil {
		return fmt.Errorf("etmap: problem creating log file: %v", err)
	}
	mw := io.MultiWriter(CobraCommand.OutOrStdout(), logfile)
	log.SetOutput(mw)
	msgLog := make(chan string)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		for msg := range msgLog {
			log.Println(msg)
		}
		wg.Done()
	}()
	defer func() { // Wait for the logging to finish.
		close(msgLog)
		wg.Wait()
		logfile.Close()
	}()

	o, err := etmap.NewOutputter(OutputFile, OutputVariables, nil)
	if err != nil {
		return err
	}
	log.Println("Parsing output variable expressions...")
	if err := o.CheckOutputVars(); err != nil {
		return err
	}

	engine, err := etmap.NewPETEngine(Constants)
	if err != nil {
		return err
	}

	src, err := etmap.NewERA5(ERA5File, StartDate, EndDate, VarMap, msgLog)
	if err != nil {
		return err
	}
	defer src.Close()

	gc, err := src.GridConfig(GridProj)
	if err != nil {
		return err
	}

	var mask *etmap.RegionMask
	if RegionFile != "" {
		sr, err := gc.SR()
		if err != nil {
			return err
		}
		region, err := etmap.ReadRegion(RegionFile, sr, msgLog)
		if err != nil {
			return err
		}
		mask, err = etmap.NewRegionMask(region, gc)
		if err != nil {
			return err
		}
	}

	var dw *etmap.DailyWriter
	var eachDay func(*etmap.PETGrid) error
	if DailyOutputFile != "" {
		w, err := os.Create(DailyOutputFile)
		if err != nil {
			return fmt.Errorf("etmap: problem creating daily output file: %v", err)
		}
		defer w.Close()
		dw, err = etmap.NewDailyWriter(w, gc, src.Days())
		if err != nil {
			return err
		}
		eachDay = dw.Add
	}

	result, err := etmap.RunPipeline(src, engine, mask, eachDay, msgLog)
	if err != nil {
		return err
	}
	if dw != nil {
		if err := dw.Close(); err != nil {
			return err
		}
	}

	log.Println("Writing output files...")
	if err := o.Output(result, gc); err != nil {
		return err
	}
	if NetCDFFile != "" {
		f, err := os.Create(NetCDFFile)
		if err != nil {
			return fmt.Errorf("etmap: problem creating NetCDF output file: %v", err)
		}
		if err := etmap.WriteNetCDF(f, gc, result); err != nil {
			return err
		}
		f.Close()
	}
	if SummaryFile != "" {
		if err := etmap.WriteSummaryXLSX(SummaryFile, result); err != nil {
			return err
		}
	}

	min, max := result.Range()
	log.Printf("Mean potential evapotranspiration: %.3g to %.3g %s.", min, max, result.Units)

	elapsedTime := time.Since(startTime)
	log.Printf("Elapsed time: %f hours", elapsedTime.Hours())

	return nil
}
