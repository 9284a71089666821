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
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

func TestGridCells(t *testing.T) {
	cfg := &GridConfig{
		Xo: -100, Yo: 30,
		Dx: 0.25, Dy: 0.25,
		Nx: 3, Ny: 2,
		Proj: "+proj=longlat",
	}
	if err := cfg.check(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Shape(), []int{2, 3}) {
		t.Errorf("shape: want [2 3] but have %v", cfg.Shape())
	}

	cells := cfg.Cells()
	if len(cells) != 6 {
		t.Fatalf("want 6 cells but have %d", len(cells))
	}

	// Row 1, column 2 is the upper-right cell.
	want := geom.Polygon{{
		{X: -99.5, Y: 30.25},
		{X: -99.25, Y: 30.25},
		{X: -99.25, Y: 30.5},
		{X: -99.5, Y: 30.5},
	}}
	if !reflect.DeepEqual(cells[1*3+2], want) {
		t.Errorf("cell (1,2): want %v but have %v", want, cells[5])
	}

	b := cells[0].Bounds()
	if b.Min.X != -100 || b.Min.Y != 30 || b.Max.X != -99.75 || b.Max.Y != 30.25 {
		t.Errorf("cell (0,0) bounds: have %+v", b)
	}
}

func TestGridCheck(t *testing.T) {
	bad := []GridConfig{
		{Dx: 0, Dy: 0.25, Nx: 1, Ny: 1},
		{Dx: 0.25, Dy: -1, Nx: 1, Ny: 1},
		{Dx: 0.25, Dy: 0.25, Nx: 0, Ny: 1},
		{Dx: 0.25, Dy: 0.25, Nx: 1, Ny: -2},
	}
	for i, cfg := range bad {
		err := cfg.check()
		if err == nil {
			t.Errorf("config %d: want an error", i)
			continue
		}
		if _, ok := err.(*InputError); !ok {
			t.Errorf("config %d: want an InputError but have %T", i, err)
		}
	}
}

func TestGridSR(t *testing.T) {
	cfg := &GridConfig{Dx: 0.25, Dy: 0.25, Nx: 1, Ny: 1, Proj: "+proj=longlat"}
	if _, err := cfg.SR(); err != nil {
		t.Fatal(err)
	}
	cfg.Proj = "not a projection"
	if _, err := cfg.SR(); err == nil {
		t.Error("want an error for an unparseable projection")
	}
}
