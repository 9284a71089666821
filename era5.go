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

package etmap

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"
)

// inDateFormat is the format for specifying dates.
const inDateFormat = "20060102"

// ERA5VarNames returns the default NetCDF variable names for each
// input field, which are the short names the ECMWF ERA5 reanalysis
// uses for daily-aggregated surface data.
func ERA5VarNames() map[string]string {
	return map[string]string{
		"TMax":     "mx2t",
		"TMin":     "mn2t",
		"Dewpoint": "d2m",
		"SolarRad": "ssrd",
		"Pressure": "sp",
		"WindU":    "u10",
		"WindV":    "v10",
	}
}

// ERA5 reads daily meteorological fields from an ERA5 NetCDF file.
// It implements the DailySource interface. The file must hold one
// time step per day on a regular latitude-longitude grid, with the
// coordinate variables named "time", "latitude", and "longitude".
type ERA5 struct {
	file string
	nc   api.Group

	fields map[string]*era5Var

	// Coordinate values of cell centers. lats is stored south to
	// north; if the file stores rows north to south, flip is true
	// and data rows are reversed when reading.
	lats []float64
	lons []float64
	flip bool

	// times holds the timestamp of every step in the file; idx
	// holds the indices of the steps within the requested window.
	times []time.Time
	idx   []int
	pos   int
}

// era5Var wraps a NetCDF variable together with its packing
// attributes.
type era5Var struct {
	name    string
	vg      api.VarGetter
	scale   float64
	add     float64
	fill    float64
	hasFill bool
	miss    float64
	hasMiss bool
}

// NewERA5 opens the NetCDF file at filePath for reading.
//
// startDate and endDate select a window of days in inDateFormat
// (YYYYMMDD): days before startDate and on or after endDate are
// skipped, and an empty string leaves that side of the window open.
//
// varNames overrides the NetCDF variable name for input fields; keys
// are field names as returned by ERA5VarNames, and fields that are
// not present (or map to an empty string) keep their defaults.
//
// msgChan, if non-nil, receives a progress message.
func NewERA5(filePath, startDate, endDate string, varNames map[string]string, msgChan chan string) (*ERA5, error) {
	names := ERA5VarNames()
	for field, name := range varNames {
		if _, ok := names[field]; !ok {
			return nil, inputErrorf("etmap: unknown input field %s in the variable name map", field)
		}
		if name != "" {
			names[field] = name
		}
	}

	var start, end time.Time
	var err error
	if startDate != "" {
		if start, err = time.ParseInLocation(inDateFormat, startDate, time.UTC); err != nil {
			return nil, inputErrorf("etmap: invalid start date %s; need YYYYMMDD", startDate)
		}
	}
	if endDate != "" {
		if end, err = time.ParseInLocation(inDateFormat, endDate, time.UTC); err != nil {
			return nil, inputErrorf("etmap: invalid end date %s; need YYYYMMDD", endDate)
		}
	}

	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("etmap: opening %s: %v", filePath, err)
	}
	d := &ERA5{file: filePath, nc: nc}
	ok := false
	defer func() {
		if !ok {
			nc.Close()
		}
	}()

	if d.lons, err = coordValues(nc, "longitude"); err != nil {
		return nil, err
	}
	if d.lats, err = coordValues(nc, "latitude"); err != nil {
		return nil, err
	}
	if len(d.lats) > 1 && d.lats[0] > d.lats[len(d.lats)-1] {
		d.flip = true
		for i, j := 0, len(d.lats)-1; i < j; i, j = i+1, j-1 {
			d.lats[i], d.lats[j] = d.lats[j], d.lats[i]
		}
	}
	if d.times, err = timeValues(nc); err != nil {
		return nil, err
	}

	d.fields = make(map[string]*era5Var, len(names))
	for field, name := range names {
		v, err := newERA5Var(nc, name)
		if err != nil {
			return nil, err
		}
		d.fields[field] = v
	}

	for i, ts := range d.times {
		day := dayOf(ts)
		if !start.IsZero() && day.Before(start) {
			continue
		}
		if !end.IsZero() && !day.Before(end) {
			continue
		}
		d.idx = append(d.idx, i)
	}
	if len(d.idx) == 0 {
		return nil, inputErrorf("etmap: no days selected from %s with window [%q, %q)",
			filePath, startDate, endDate)
	}
	if msgChan != nil {
		msgChan <- fmt.Sprintf("Reading %d days of meteorology from %s.", len(d.idx), filePath)
	}
	ok = true
	return d, nil
}

// Close closes the underlying file.
func (d *ERA5) Close() {
	d.nc.Close()
}

// Nx returns the number of grid columns.
func (d *ERA5) Nx() (int, error) { return len(d.lons), nil }

// Ny returns the number of grid rows.
func (d *ERA5) Ny() (int, error) { return len(d.lats), nil }

// Days returns the number of days in the selected window.
func (d *ERA5) Days() int { return len(d.idx) }

// Next returns the fields for the next day in the window, or io.EOF
// after the last one. The returned time is the start of the day in
// UTC.
func (d *ERA5) Next() (*DailyFields, error) {
	if d.pos >= len(d.idx) {
		return nil, io.EOF
	}
	step := d.idx[d.pos]
	f := &DailyFields{Time: dayOf(d.times[step])}
	var err error
	if f.TMax, err = d.readField("TMax", step); err != nil {
		return nil, err
	}
	if f.TMin, err = d.readField("TMin", step); err != nil {
		return nil, err
	}
	if f.Dewpoint, err = d.readField("Dewpoint", step); err != nil {
		return nil, err
	}
	if f.SolarRad, err = d.readField("SolarRad", step); err != nil {
		return nil, err
	}
	if f.Pressure, err = d.readField("Pressure", step); err != nil {
		return nil, err
	}
	if f.WindU, err = d.readField("WindU", step); err != nil {
		return nil, err
	}
	if f.WindV, err = d.readField("WindV", step); err != nil {
		return nil, err
	}
	d.pos++
	return f, nil
}

// GridConfig returns the geometry of the data grid. The coordinate
// variables give cell centers, so the grid origin is offset from the
// first coordinate values by half a cell. proj is the Proj4 spatial
// reference of the grid; if it is empty the grid is assumed to be in
// geographic coordinates.
func (d *ERA5) GridConfig(proj string) (*GridConfig, error) {
	if proj == "" {
		proj = "+proj=longlat"
	}
	dx, err := spacing(d.lons, "longitude")
	if err != nil {
		return nil, err
	}
	dy, err := spacing(d.lats, "latitude")
	if err != nil {
		return nil, err
	}
	gc := &GridConfig{
		Xo:   d.lons[0] - dx/2,
		Yo:   d.lats[0] - dy/2,
		Dx:   dx,
		Dy:   dy,
		Nx:   len(d.lons),
		Ny:   len(d.lats),
		Proj: proj,
	}
	return gc, gc.check()
}

// spacing returns the step between consecutive coordinate values,
// requiring that the coordinate is ascending and evenly spaced.
func spacing(coords []float64, name string) (float64, error) {
	if len(coords) < 2 {
		return 0, inputErrorf("etmap: the %s coordinate needs at least 2 values", name)
	}
	dx := coords[1] - coords[0]
	if dx <= 0 {
		return 0, inputErrorf("etmap: the %s coordinate must be ascending", name)
	}
	for i := 2; i < len(coords); i++ {
		if math.Abs(coords[i]-coords[i-1]-dx) > dx*1.0e-4 {
			return 0, inputErrorf("etmap: the %s coordinate is not evenly spaced", name)
		}
	}
	return dx, nil
}

// readField reads one day of one input field, unpacks it, and
// arranges its rows south to north.
func (d *ERA5) readField(field string, step int) (*sparse.DenseArray, error) {
	v := d.fields[field]
	s, err := v.vg.GetSlice(int64(step), int64(step+1))
	if err != nil {
		return nil, fmt.Errorf("etmap: reading variable %s from %s: %v", v.name, d.file, err)
	}
	rows, err := gridFloats(s)
	if err != nil {
		return nil, fmt.Errorf("etmap: variable %s in %s: %v", v.name, d.file, err)
	}
	ny, nx := len(d.lats), len(d.lons)
	if len(rows) != ny {
		return nil, inputErrorf("etmap: variable %s has %d rows; want %d", v.name, len(rows), ny)
	}
	out := sparse.ZerosDense(ny, nx)
	for j, src := range rows {
		if len(src) != nx {
			return nil, inputErrorf("etmap: variable %s has %d columns; want %d", v.name, len(src), nx)
		}
		jj := j
		if d.flip {
			jj = ny - 1 - j
		}
		for i, raw := range src {
			if (v.hasFill && raw == v.fill) || (v.hasMiss && raw == v.miss) {
				out.Elements[jj*nx+i] = math.NaN()
			} else {
				out.Elements[jj*nx+i] = raw*v.scale + v.add
			}
		}
	}
	return out, nil
}

func newERA5Var(nc api.Group, name string) (*era5Var, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, inputErrorf("etmap: variable %s is not in the input file: %v", name, err)
	}
	v := &era5Var{name: name, vg: vg, scale: 1}
	attrs := vg.Attributes()
	if s, ok := attrFloat(attrs, "scale_factor"); ok {
		v.scale = s
	}
	if o, ok := attrFloat(attrs, "add_offset"); ok {
		v.add = o
	}
	if f, ok := attrFloat(attrs, "_FillValue"); ok {
		v.fill, v.hasFill = f, true
	}
	if m, ok := attrFloat(attrs, "missing_value"); ok {
		v.miss, v.hasMiss = m, true
	}
	return v, nil
}

// gridFloats converts one time step of a [time][row][column]
// variable to rows of float64 values without unpacking them.
func gridFloats(v interface{}) ([][]float64, error) {
	switch s := v.(type) {
	case [][][]float64:
		return s[0], nil
	case [][][]float32:
		out := make([][]float64, len(s[0]))
		for j, src := range s[0] {
			row := make([]float64, len(src))
			for i, val := range src {
				row[i] = float64(val)
			}
			out[j] = row
		}
		return out, nil
	case [][][]int16:
		out := make([][]float64, len(s[0]))
		for j, src := range s[0] {
			row := make([]float64, len(src))
			for i, val := range src {
				row[i] = float64(val)
			}
			out[j] = row
		}
		return out, nil
	case [][][]int32:
		out := make([][]float64, len(s[0]))
		for j, src := range s[0] {
			row := make([]float64, len(src))
			for i, val := range src {
				row[i] = float64(val)
			}
			out[j] = row
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported variable type %T", v)
}

func coordValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, inputErrorf("etmap: coordinate variable %s is not in the input file: %v", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("etmap: reading coordinate %s: %v", name, err)
	}
	switch c := v.(type) {
	case []float64:
		return c, nil
	case []float32:
		out := make([]float64, len(c))
		for i, val := range c {
			out[i] = float64(val)
		}
		return out, nil
	}
	return nil, inputErrorf("etmap: coordinate %s has unsupported type %T", name, v)
}

func timeValues(nc api.Group) ([]time.Time, error) {
	vg, err := nc.GetVarGetter("time")
	if err != nil {
		return nil, inputErrorf("etmap: coordinate variable time is not in the input file: %v", err)
	}
	units := "hours since 1900-01-01 00:00:00.0"
	if u, ok := attrString(vg.Attributes(), "units"); ok {
		units = u
	}
	mult, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("etmap: reading time coordinate: %v", err)
	}
	var raw []float64
	switch c := v.(type) {
	case []float64:
		raw = c
	case []float32:
		raw = make([]float64, len(c))
		for i, val := range c {
			raw[i] = float64(val)
		}
	case []int32:
		raw = make([]float64, len(c))
		for i, val := range c {
			raw[i] = float64(val)
		}
	case []int64:
		raw = make([]float64, len(c))
		for i, val := range c {
			raw[i] = float64(val)
		}
	default:
		return nil, inputErrorf("etmap: time coordinate has unsupported type %T", v)
	}
	out := make([]time.Time, len(raw))
	for i, r := range raw {
		out[i] = epoch.Add(time.Duration(int64(r*float64(mult))) * time.Second)
	}
	return out, nil
}

// parseTimeUnits interprets a CF-style time units string such as
// "hours since 1900-01-01 00:00:00.0", returning the number of
// seconds per time unit and the epoch.
func parseTimeUnits(units string) (mult int64, epoch time.Time, err error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || fields[1] != "since" {
		return 0, time.Time{}, inputErrorf("etmap: unsupported time units %q", units)
	}
	switch fields[0] {
	case "seconds":
		mult = 1
	case "hours":
		mult = 3600
	case "days":
		mult = 86400
	default:
		return 0, time.Time{}, inputErrorf("etmap: unsupported time units %q", units)
	}
	clock := "00:00:00"
	if len(fields) > 3 {
		clock = fields[3]
		if i := strings.Index(clock, "."); i != -1 {
			clock = clock[:i]
		}
	}
	epoch, err = time.ParseInLocation("2006-1-2 15:4:5", fields[2]+" "+clock, time.UTC)
	if err != nil {
		return 0, time.Time{}, inputErrorf("etmap: unsupported time units %q", units)
	}
	return mult, epoch, nil
}

// dayOf truncates a time to the start of its UTC day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func attrFloat(attrs api.AttributeMap, name string) (float64, bool) {
	v, ok := attrs.Get(name)
	if !ok {
		return 0, false
	}
	switch a := v.(type) {
	case float64:
		return a, true
	case float32:
		return float64(a), true
	case int64:
		return float64(a), true
	case int32:
		return float64(a), true
	case int16:
		return float64(a), true
	case int8:
		return float64(a), true
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int64:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int8:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	}
	return 0, false
}

func attrString(attrs api.AttributeMap, name string) (string, bool) {
	v, ok := attrs.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
