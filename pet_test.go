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
	"io"
	"math"
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

// testDailyFields returns one day of spatially uniform inputs for a
// warm summer day: 30/20 °C air temperature, 15 °C dewpoint, 15 MJ
// m-2 of solar radiation, sea-level pressure, and a 2 m s-1 eastward
// wind.
func testDailyFields(day time.Time, ny, nx int) *DailyFields {
	c := func(v float64) *sparse.DenseArray {
		a := sparse.ZerosDense(ny, nx)
		for i := range a.Elements {
			a.Elements[i] = v
		}
		return a
	}
	return &DailyFields{
		Time:     day,
		TMax:     c(303.15),
		TMin:     c(293.15),
		Dewpoint: c(288.15),
		SolarRad: c(15.0e6),
		Pressure: c(101325),
		WindU:    c(2),
		WindV:    c(0),
	}
}

func TestDailyPET(t *testing.T) {
	// Hand calculation for the testDailyFields scenario:
	// tmean=25 °C, es=3.16778 kPa, ea=1.70535 kPa, Δ=0.188682,
	// γ=0.0673550, Rns=11.55, Rnl=7.5144e-3, wind=2.
	const want = 4.91503
	const tolerance = 1.0e-3

	e, err := NewPETEngine(DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2017, time.July, 1, 0, 0, 0, 0, time.UTC)
	g, err := e.Daily(testDailyFields(day, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !g.Time.Equal(day) {
		t.Errorf("time: want %v but have %v", day, g.Time)
	}
	pet := g.Data.Elements[0]
	if different(pet, want, tolerance) {
		t.Errorf("PET: want %g but have %g", want, pet)
	}
	// A warm summer day should evaporate a few millimeters.
	if pet < 2 || pet > 7 {
		t.Errorf("PET %g mm/day is implausible", pet)
	}
}

func TestDailyPETMissingInput(t *testing.T) {
	const tolerance = 1.0e-3
	e, err := NewPETEngine(DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2017, time.July, 1, 0, 0, 0, 0, time.UTC)
	f := testDailyFields(day, 1, 2)
	f.TMax.Elements[1] = math.NaN()
	g, err := e.Daily(f)
	if err != nil {
		t.Fatal(err)
	}
	if different(g.Data.Elements[0], 4.91503, tolerance) {
		t.Errorf("cell 0: want %g but have %g", 4.91503, g.Data.Elements[0])
	}
	if !math.IsNaN(g.Data.Elements[1]) {
		t.Errorf("cell 1: want NaN but have %g", g.Data.Elements[1])
	}
}

func TestDailyPETFieldErrors(t *testing.T) {
	e, err := NewPETEngine(DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2017, time.July, 1, 0, 0, 0, 0, time.UTC)

	f := testDailyFields(day, 1, 2)
	f.Pressure = nil
	if _, err := e.Daily(f); err == nil {
		t.Error("missing field: want error but have none")
	} else if _, ok := err.(*InputError); !ok {
		t.Errorf("missing field: want InputError but have %v", err)
	}

	f = testDailyFields(day, 1, 2)
	f.WindV = sparse.ZerosDense(2, 2)
	if _, err := e.Daily(f); err == nil {
		t.Error("shape mismatch: want error but have none")
	} else if _, ok := err.(*InputError); !ok {
		t.Errorf("shape mismatch: want InputError but have %v", err)
	}

	f = testDailyFields(day, 1, 2)
	f.TMax = sparse.ZerosDense(2)
	if _, err := e.Daily(f); err == nil {
		t.Error("1-d field: want error but have none")
	} else if _, ok := err.(*InputError); !ok {
		t.Errorf("1-d field: want InputError but have %v", err)
	}
}

func TestNewPETEngineErrors(t *testing.T) {
	if _, err := NewPETEngine(DefaultConstants()); err != nil {
		t.Errorf("default constants: %v", err)
	}
	cases := []func(*PETConstants){
		func(c *PETConstants) { c.Albedo = 1.2 },
		func(c *PETConstants) { c.Albedo = -0.1 },
		func(c *PETConstants) { c.Cp = 0 },
		func(c *PETConstants) { c.Epsilon = -0.622 },
		func(c *PETConstants) { c.Lambda = 0 },
		func(c *PETConstants) { c.SoilHeatFlux = math.NaN() },
		func(c *PETConstants) { c.WindHeight = -3 },
	}
	for i, alter := range cases {
		c := DefaultConstants()
		alter(&c)
		if _, err := NewPETEngine(c); err == nil {
			t.Errorf("case %d: want error but have none", i)
		} else if _, ok := err.(*InputError); !ok {
			t.Errorf("case %d: want InputError but have %v", i, err)
		}
	}
}

func TestDailyPETWindHeight(t *testing.T) {
	const tolerance = 1.0e-3
	day := time.Date(2017, time.July, 1, 0, 0, 0, 0, time.UTC)

	c := DefaultConstants()
	c.WindHeight = 10
	e10, err := NewPETEngine(c)
	if err != nil {
		t.Fatal(err)
	}
	g10, err := e10.Daily(testDailyFields(day, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	// A 2 m s-1 wind measured at 10 m is 1.49590 m s-1 at 2 m,
	// which reduces the result to 4.59390.
	if different(g10.Data.Elements[0], 4.59390, tolerance) {
		t.Errorf("10-m wind: want %g but have %g", 4.59390, g10.Data.Elements[0])
	}

	e, err := NewPETEngine(DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	g, err := e.Daily(testDailyFields(day, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if g10.Data.Elements[0] >= g.Data.Elements[0] {
		t.Errorf("wind adjusted from 10 m should give less evapotranspiration: %g >= %g",
			g10.Data.Elements[0], g.Data.Elements[0])
	}

	// The standard measurement height changes nothing.
	c = DefaultConstants()
	c.WindHeight = 2
	e2, err := NewPETEngine(c)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := e2.Daily(testDailyFields(day, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if different(g2.Data.Elements[0], g.Data.Elements[0], 1.0e-12) {
		t.Errorf("2-m wind height: want %g but have %g", g.Data.Elements[0], g2.Data.Elements[0])
	}
}

type fakeSource struct {
	days []*DailyFields
	i    int
}

func (s *fakeSource) Next() (*DailyFields, error) {
	if s.i >= len(s.days) {
		return nil, io.EOF
	}
	f := s.days[s.i]
	s.i++
	return f, nil
}

func (s *fakeSource) Nx() (int, error) { return s.days[0].TMax.Shape[1], nil }
func (s *fakeSource) Ny() (int, error) { return s.days[0].TMax.Shape[0], nil }

func TestSeries(t *testing.T) {
	day1 := time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2017, time.January, 2, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{days: []*DailyFields{
		testDailyFields(day1, 2, 2),
		testDailyFields(day2, 2, 2),
	}}
	e, err := NewPETEngine(DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	msgChan := make(chan string, 2)
	next := e.Series(src, msgChan)
	for i, want := range []time.Time{day1, day2} {
		g, err := next()
		if err != nil {
			t.Fatal(err)
		}
		if !g.Time.Equal(want) {
			t.Errorf("day %d: want time %v but have %v", i, want, g.Time)
		}
		wantMsg := fmt.Sprintf("Finished calculating PET for %s.", want.Format(inDateFormat))
		if msg := <-msgChan; msg != wantMsg {
			t.Errorf("day %d: want message %q but have %q", i, wantMsg, msg)
		}
	}
	if _, err := next(); err != io.EOF {
		t.Errorf("want io.EOF but have %v", err)
	}
}

func TestRunPipeline(t *testing.T) {
	const tolerance = 1.0e-3
	day1 := time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2017, time.January, 2, 0, 0, 0, 0, time.UTC)
	newSource := func() *fakeSource {
		return &fakeSource{days: []*DailyFields{
			testDailyFields(day1, 3, 3),
			testDailyFields(day2, 3, 3),
		}}
	}
	e, err := NewPETEngine(DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	mask, err := NewRegionMask(maskTestRegion(), maskTestConfig())
	if err != nil {
		t.Fatal(err)
	}

	var days int
	eachDay := func(g *PETGrid) error {
		days++
		// The daily grids are not clipped.
		for i, v := range g.Data.Elements {
			if math.IsNaN(v) {
				return fmt.Errorf("day %v cell %d: unexpected NaN", g.Time, i)
			}
		}
		return nil
	}
	agg, err := RunPipeline(newSource(), e, mask, eachDay, nil)
	if err != nil {
		t.Fatal(err)
	}
	if days != 2 {
		t.Errorf("want 2 daily grids but have %d", days)
	}
	if agg.Units != PETUnits {
		t.Errorf("units: want %q but have %q", PETUnits, agg.Units)
	}
	keep := []bool{true, true, false, true, true, false, false, false, false}
	for i, k := range keep {
		pet := agg.Data.Elements[i]
		n := agg.Days.Elements[i]
		if k {
			if different(pet, 4.91503, tolerance) {
				t.Errorf("cell %d: want PET %g but have %g", i, 4.91503, pet)
			}
			if n != 2 {
				t.Errorf("cell %d: want 2 days but have %g", i, n)
			}
		} else {
			if !math.IsNaN(pet) || !math.IsNaN(n) {
				t.Errorf("cell %d: want NaN outside the region but have %g, %g", i, pet, n)
			}
		}
	}

	// Errors from the daily callback stop the pipeline.
	wantErr := fmt.Errorf("daily output failed")
	_, err = RunPipeline(newSource(), e, mask, func(g *PETGrid) error { return wantErr }, nil)
	if err != wantErr {
		t.Errorf("want %v but have %v", wantErr, err)
	}
}
