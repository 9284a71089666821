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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// A GridConfig describes the regular rectangular grid the
// meteorological fields and results lie on. Rows are ordered south
// to north and columns west to east, matching the layout of the
// data arrays.
type GridConfig struct {
	Xo float64 // lower left of grid, x
	Yo float64 // lower left of grid, y

	Dx float64 // grid cell width [same unit as Proj]
	Dy float64 // grid cell height [same unit as Proj]

	Nx int // number of columns
	Ny int // number of rows

	// Proj is the spatial reference of the grid coordinates in
	// PROJ4 format, for example "+proj=longlat".
	Proj string
}

func (c *GridConfig) check() error {
	if !(c.Dx > 0) || !(c.Dy > 0) {
		return inputErrorf("etmap: the grid cell size (%g, %g) must be positive", c.Dx, c.Dy)
	}
	if c.Nx <= 0 || c.Ny <= 0 {
		return inputErrorf("etmap: the grid dimensions (%d, %d) must be positive", c.Nx, c.Ny)
	}
	return nil
}

// Shape returns the [ny][nx] shape of data arrays on this grid.
func (c *GridConfig) Shape() []int {
	return []int{c.Ny, c.Nx}
}

// CellPolygon returns the rectangle of the grid cell in row j and
// column i.
func (c *GridConfig) CellPolygon(j, i int) geom.Polygon {
	x0 := c.Xo + c.Dx*float64(i)
	x1 := c.Xo + c.Dx*float64(i+1)
	y0 := c.Yo + c.Dy*float64(j)
	y1 := c.Yo + c.Dy*float64(j+1)
	return geom.Polygon{{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
	}}
}

// Cells returns the geometry of every grid cell in row-major order,
// so that the cell in row j and column i is at index j*Nx+i,
// matching the element layout of data arrays on this grid.
func (c *GridConfig) Cells() []geom.Polygonal {
	cells := make([]geom.Polygonal, 0, c.Nx*c.Ny)
	for j := 0; j < c.Ny; j++ {
		for i := 0; i < c.Nx; i++ {
			cells = append(cells, c.CellPolygon(j, i))
		}
	}
	return cells
}

// SR returns the parsed spatial reference of the grid.
func (c *GridConfig) SR() (*proj.SR, error) {
	sr, err := proj.Parse(c.Proj)
	if err != nil {
		return nil, fmt.Errorf("etmap: while parsing grid projection: %v", err)
	}
	return sr, nil
}
