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
	"math"
	"os"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/spatialmodel/etmap"
)

// writeTestMeteorology writes a 3-day, 3-row, 2-column meteorology
// file where every cell of every day holds the same conditions:
// 30 °C maximum and 20 °C minimum temperature, a 15 °C dewpoint,
// 15 MJ m-2 of solar radiation, standard pressure, and a 2 m/s wind.
// The dewpoint is packed into int16 values with one fill value at
// day 0, northernmost row, first column. The latitude rows are stored
// north to south as in ERA5 downloads.
func writeTestMeteorology(t *testing.T, fileName string) {
	h := cdf.NewHeader([]string{"time", "latitude", "longitude"}, []int{3, 3, 2})
	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", "hours since 1900-01-01 00:00:00.0")
	h.AddVariable("latitude", []string{"latitude"}, []float32{0})
	h.AddVariable("longitude", []string{"longitude"}, []float32{0})
	for _, v := range []string{"mx2t", "mn2t", "ssrd", "sp", "u10", "v10"} {
		h.AddVariable(v, []string{"time", "latitude", "longitude"}, []float32{0})
	}
	h.AddVariable("d2m", []string{"time", "latitude", "longitude"}, []int16{0})
	h.AddAttribute("d2m", "scale_factor", []float64{0.01})
	h.AddAttribute("d2m", "add_offset", []float64{250})
	h.AddAttribute("d2m", "_FillValue", []int16{-32767})
	h.Define()

	w, err := os.Create(fileName)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	write := func(v string, data interface{}) {
		end := f.Header.Lengths(v)
		start := make([]int, len(end))
		if _, err := f.Writer(v, start, end).Write(data); err != nil {
			t.Fatalf("writing %s: %v", v, err)
		}
	}

	epoch := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	hours := make([]int32, 3)
	for i := range hours {
		day := time.Date(2017, time.January, i+1, 0, 0, 0, 0, time.UTC)
		hours[i] = int32(day.Sub(epoch).Hours())
	}
	write("time", hours)
	write("latitude", []float32{2.5, 1.5, 0.5})
	write("longitude", []float32{0.5, 1.5})

	field := func(val float32) []float32 {
		data := make([]float32, 3*3*2)
		for k := range data {
			data[k] = val
		}
		return data
	}
	write("mx2t", field(303.15))
	write("mn2t", field(293.15))
	write("ssrd", field(1.5e7))
	write("sp", field(101325))
	write("u10", field(2))
	write("v10", field(0))

	// 250 + 3815*0.01 = 288.15 K.
	dew := make([]int16, 3*3*2)
	for k := range dew {
		dew[k] = 3815
	}
	dew[0] = -32767
	write("d2m", dew)

	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunCmd(t *testing.T) {
	writeTestMeteorology(t, "tmp_era5.nc")
	defer os.Remove("tmp_era5.nc")
	defer etmap.DeleteShapefile("tmp_out.shp")
	defer os.Remove("tmp_out.log")

	Cfg.Set("ERA5File", "tmp_era5.nc")
	Cfg.Set("OutputFile", "tmp_out.shp")
	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	type outData struct {
		PET  float64
		Days float64
	}
	dec, err := shp.NewDecoder("tmp_out.shp")
	if err != nil {
		t.Fatal(err)
	}
	var recs []outData
	for {
		var rec outData
		if more := dec.DecodeRow(&rec); !more {
			break
		}
		recs = append(recs, rec)
	}
	if err := dec.Error(); err != nil {
		t.Fatal(err)
	}
	dec.Close()
	if len(recs) != 6 {
		t.Fatalf("want 6 records but have %d", len(recs))
	}
	for i, rec := range recs {
		if math.Abs(rec.PET-4.91503) > 1.0e-3 {
			t.Errorf("record %d: want PET 4.91503 but have %g", i, rec.PET)
		}
		wantDays := 3.0
		if i == 4 { // The cell with the fill value on the first day.
			wantDays = 2
		}
		if rec.Days != wantDays {
			t.Errorf("record %d: want %g days but have %g", i, wantDays, rec.Days)
		}
	}
	if _, err := os.Stat("tmp_out.log"); err != nil {
		t.Errorf("the log file should exist: %v", err)
	}
}

func TestDailyCmd(t *testing.T) {
	writeTestMeteorology(t, "tmp_era5.nc")
	defer os.Remove("tmp_era5.nc")
	defer etmap.DeleteShapefile("tmp_out.shp")
	defer os.Remove("tmp_out.log")
	defer os.Remove("tmp_daily.nc")

	Cfg.Set("ERA5File", "tmp_era5.nc")
	Cfg.Set("OutputFile", "tmp_out.shp")
	Cfg.Set("DailyOutputFile", "tmp_daily.nc")
	Root.SetArgs([]string{"daily"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	r, err := os.Open("tmp_daily.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	f, err := cdf.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	hours := make([]int32, 3)
	if _, err := f.Reader("time", nil, nil).Read(hours); err != nil {
		t.Fatal(err)
	}
	if hours[1]-hours[0] != 24 || hours[2]-hours[1] != 24 {
		t.Errorf("the days should be 24 hours apart: %v", hours)
	}

	pet := make([]float32, 3*3*2)
	if _, err := f.Reader("pet", nil, nil).Read(pet); err != nil {
		t.Fatal(err)
	}
	for k, v := range pet {
		if k == 4 { // The cell with the fill value on the first day.
			if !math.IsNaN(float64(v)) {
				t.Errorf("value %d: want NaN but have %g", k, v)
			}
			continue
		}
		if math.Abs(float64(v)-4.91503) > 1.0e-3 {
			t.Errorf("value %d: want 4.91503 but have %g", k, v)
		}
	}
}
