/*
Copyright © 2018 the ETMap authors.
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
	"math"
	"reflect"
	"time"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Version gives the version number.
const Version = "0.1.0"

// An InputError is returned when input data or caller-supplied
// configuration violates the requirements of the operation that
// received it.
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func inputErrorf(format string, args ...interface{}) *InputError {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// A GeometryError is returned when a spatial operation receives
// geometry it cannot work with, such as a region with zero area.
type GeometryError struct {
	msg string
}

func (e *GeometryError) Error() string { return e.msg }

func geometryErrorf(format string, args ...interface{}) *GeometryError {
	return &GeometryError{msg: fmt.Sprintf(format, args...)}
}

// DailyFields holds one day of gridded meteorological inputs.
// All arrays must share the same [ny][nx] shape, where rows are
// ordered south to north and columns west to east. Cells with no
// valid data hold NaN.
type DailyFields struct {
	// Time is the day the fields are valid for.
	Time time.Time

	TMax     *sparse.DenseArray // Daily maximum 2-m air temperature [K]
	TMin     *sparse.DenseArray // Daily minimum 2-m air temperature [K]
	Dewpoint *sparse.DenseArray // Daily mean 2-m dewpoint temperature [K]
	SolarRad *sparse.DenseArray // Daily accumulated surface solar radiation [J m-2]
	Pressure *sparse.DenseArray // Daily mean surface pressure [Pa]
	WindU    *sparse.DenseArray // Daily mean 10-m eastward wind [m s-1]
	WindV    *sparse.DenseArray // Daily mean 10-m northward wind [m s-1]
}

// check returns an error if any field is absent or if the fields do
// not all share the same shape.
func (f *DailyFields) check() error {
	fields := []struct {
		name string
		data *sparse.DenseArray
	}{
		{"TMax", f.TMax},
		{"TMin", f.TMin},
		{"Dewpoint", f.Dewpoint},
		{"SolarRad", f.SolarRad},
		{"Pressure", f.Pressure},
		{"WindU", f.WindU},
		{"WindV", f.WindV},
	}
	for _, v := range fields {
		if v.data == nil {
			return inputErrorf("etmap: input field %s is missing", v.name)
		}
	}
	shape := fields[0].data.Shape
	if len(shape) != 2 {
		return inputErrorf("etmap: input field %s has %d dimensions; want 2",
			fields[0].name, len(shape))
	}
	for _, v := range fields[1:] {
		if !reflect.DeepEqual(v.data.Shape, shape) {
			return inputErrorf("etmap: input field %s has shape %v; want %v",
				v.name, v.data.Shape, shape)
		}
	}
	return nil
}

// DailySource is an iterator over successive days of meteorological
// fields, ordered by time. Implementations return io.EOF from Next
// after the last day.
type DailySource interface {
	// Next returns the fields for the next day in the series.
	Next() (*DailyFields, error)

	// Nx returns the number of columns in the grid.
	Nx() (int, error)

	// Ny returns the number of rows in the grid.
	Ny() (int, error)
}

// RunPipeline computes evapotranspiration for every day produced by
// src and reduces the results to a climatological mean. If eachDay is
// non-nil it is called with each daily grid as it is computed, before
// reduction. If mask is non-nil the aggregated grids are clipped to
// the mask's region. msgChan, if non-nil, receives progress messages.
func RunPipeline(src DailySource, e *PETEngine, mask *RegionMask, eachDay func(*PETGrid) error, msgChan chan string) (*AggregateGrid, error) {
	nx, err := src.Nx()
	if err != nil {
		return nil, err
	}
	ny, err := src.Ny()
	if err != nil {
		return nil, err
	}
	next := e.Series(src, msgChan)
	if eachDay != nil {
		inner := next
		next = func() (*PETGrid, error) {
			g, err := inner()
			if err != nil {
				return nil, err
			}
			if err := eachDay(g); err != nil {
				return nil, err
			}
			return g, nil
		}
	}
	agg, err := MeanPET(next, []int{ny, nx})
	if err != nil {
		return nil, err
	}
	if mask != nil {
		if agg.Data, err = mask.Clip(agg.Data); err != nil {
			return nil, err
		}
		if agg.Days, err = mask.Clip(agg.Days); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// validValues returns the values in data that are neither NaN nor
// infinite.
func validValues(data *sparse.DenseArray) []float64 {
	v := make([]float64, 0, len(data.Elements))
	for _, e := range data.Elements {
		if !math.IsNaN(e) && !math.IsInf(e, 0) {
			v = append(v, e)
		}
	}
	return v
}

// gridRange returns the smallest and largest valid values in data,
// or NaN for both if the grid holds no valid values.
func gridRange(data *sparse.DenseArray) (min, max float64) {
	v := validValues(data)
	if len(v) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(v), floats.Max(v)
}
