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
	"io"
	"math"
	"reflect"

	"github.com/ctessum/sparse"
)

// NextPET is an iterator over a time series of daily
// evapotranspiration grids. It returns io.EOF after the last grid.
type NextPET func() (*PETGrid, error)

// PETUnits is the unit of the evapotranspiration values.
const PETUnits = "mm/day"

// An AggregateGrid holds the temporal mean of a series of daily
// evapotranspiration grids together with the number of days each
// cell's mean is based on.
type AggregateGrid struct {
	// Data holds the mean potential evapotranspiration [mm day-1].
	// Cells with no valid value on any day hold NaN.
	Data *sparse.DenseArray

	// Days holds the number of days with a valid value in each
	// cell.
	Days *sparse.DenseArray

	// Units describes the values in Data.
	Units string
}

// Range returns the smallest and largest valid values in the grid,
// or NaN for both if there are none.
func (a *AggregateGrid) Range() (min, max float64) {
	return gridRange(a.Data)
}

// MeanPET calculates the cell-wise arithmetic mean of the grids
// returned by dataFunc, counting for each cell only the days where
// the cell holds a valid value. shape gives the expected [ny][nx]
// grid shape; it may be nil if the series is known to be non-empty,
// in which case the shape of the first grid is used. An empty series
// with a shape yields an all-NaN grid; an empty series without one
// is an error.
func MeanPET(dataFunc NextPET, shape []int) (*AggregateGrid, error) {
	if shape != nil && len(shape) != 2 {
		return nil, inputErrorf("etmap: grid shape %v has %d dimensions; want 2", shape, len(shape))
	}
	var sum, days *sparse.DenseArray
	if shape != nil {
		sum = sparse.ZerosDense(shape...)
		days = sparse.ZerosDense(shape...)
	}
	for {
		data, err := dataFunc()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if sum == nil {
			shape = data.Data.Shape
			sum = sparse.ZerosDense(shape...)
			days = sparse.ZerosDense(shape...)
		} else if !reflect.DeepEqual(data.Data.Shape, shape) {
			return nil, inputErrorf("etmap: grid for %s has shape %v; want %v",
				data.Time.Format(inDateFormat), data.Data.Shape, shape)
		}
		for i, v := range data.Data.Elements {
			if !math.IsNaN(v) {
				sum.Elements[i] += v
				days.Elements[i]++
			}
		}
	}
	if sum == nil {
		return nil, inputErrorf("etmap: cannot reduce an empty series without a grid shape")
	}
	for i, n := range days.Elements {
		if n > 0 {
			sum.Elements[i] /= n
		} else {
			sum.Elements[i] = math.NaN()
		}
	}
	return &AggregateGrid{Data: sum, Days: days, Units: PETUnits}, nil
}
