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
	"runtime"
	"sync"
	"time"

	"github.com/ctessum/sparse"
)

// PETConstants holds the physical constants of the Penman-Monteith
// calculation. They are explicit so that sensitivity runs can vary
// them without touching the formula code.
type PETConstants struct {
	// Albedo is the surface albedo of the reference crop
	// [fraction].
	Albedo float64

	// Cp is the specific heat of moist air at constant pressure
	// [MJ kg-1 °C-1].
	Cp float64

	// Epsilon is the ratio of the molecular weights of water vapor
	// and dry air.
	Epsilon float64

	// Lambda is the latent heat of vaporization [MJ kg-1].
	Lambda float64

	// SoilHeatFlux is the daily soil heat flux G [MJ m-2 day-1].
	// It is negligible at a daily time step and therefore zero by
	// default.
	SoilHeatFlux float64

	// WindHeight is the height of the wind measurements [m]. If it
	// is nonzero and not the standard 2 m, wind speeds are adjusted
	// to the 2-m height with the logarithmic wind profile. If zero,
	// wind speeds are used as measured.
	WindHeight float64
}

// DefaultConstants returns the FAO-56 reference values for the
// Penman-Monteith constants.
func DefaultConstants() PETConstants {
	return PETConstants{
		Albedo:  0.23,
		Cp:      1.013e-3,
		Epsilon: 0.622,
		Lambda:  2.45,
	}
}

func (c PETConstants) check() error {
	if math.IsNaN(c.Albedo) || c.Albedo < 0 || c.Albedo >= 1 {
		return inputErrorf("etmap: albedo %g is outside [0, 1)", c.Albedo)
	}
	if !(c.Cp > 0) {
		return inputErrorf("etmap: specific heat %g must be positive", c.Cp)
	}
	if !(c.Epsilon > 0) {
		return inputErrorf("etmap: molecular weight ratio %g must be positive", c.Epsilon)
	}
	if !(c.Lambda > 0) {
		return inputErrorf("etmap: latent heat %g must be positive", c.Lambda)
	}
	if math.IsNaN(c.SoilHeatFlux) {
		return inputErrorf("etmap: soil heat flux must not be NaN")
	}
	if math.IsNaN(c.WindHeight) || c.WindHeight < 0 {
		return inputErrorf("etmap: wind measurement height %g must not be negative", c.WindHeight)
	}
	return nil
}

// A PETEngine computes daily reference-surface potential
// evapotranspiration with the FAO-56 Penman-Monteith equation
// (Allen et al., 1998).
type PETEngine struct {
	constants PETConstants
}

// NewPETEngine creates a new calculation engine with the given
// constants, which are usually DefaultConstants().
func NewPETEngine(c PETConstants) (*PETEngine, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return &PETEngine{constants: c}, nil
}

// A PETGrid holds potential evapotranspiration [mm day-1] for one
// day. Cells where the result is undefined hold NaN.
type PETGrid struct {
	// Time is the day the grid is valid for.
	Time time.Time

	Data *sparse.DenseArray
}

// Range returns the smallest and largest valid values in the grid,
// or NaN for both if there are none.
func (g *PETGrid) Range() (min, max float64) {
	return gridRange(g.Data)
}

// Daily computes the potential evapotranspiration grid for one day
// of input fields. Cells with a missing input or a guarded numeric
// condition hold NaN in the result; they never abort the
// computation.
func (e *PETEngine) Daily(f *DailyFields) (*PETGrid, error) {
	if err := f.check(); err != nil {
		return nil, err
	}

	tmaxC := KelvinToCelsius(f.TMax)
	tminC := KelvinToCelsius(f.TMin)
	dewC := KelvinToCelsius(f.Dewpoint)
	pressure := PaToKPa(f.Pressure)
	rs := JoulesToMegajoules(f.SolarRad)

	out := sparse.ZerosDense(f.TMax.Shape...)

	// Each cell is independent, so shard the grid across processors.
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for i := pp; i < len(out.Elements); i += nprocs {
				out.Elements[i] = e.cellPET(tmaxC.Elements[i], tminC.Elements[i],
					dewC.Elements[i], rs.Elements[i], pressure.Elements[i],
					f.WindU.Elements[i], f.WindV.Elements[i])
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()

	return &PETGrid{Time: f.Time, Data: out}, nil
}

// cellPET evaluates the Penman-Monteith equation for a single cell.
// Temperatures are in °C, rs in MJ m-2 day-1, p in kPa, and u and v
// in m s-1.
func (e *PETEngine) cellPET(tmaxC, tminC, dewC, rs, p, u, v float64) float64 {
	c := e.constants

	tmean := (tmaxC + tminC) / 2
	es := SaturationVaporPressure(tmean)
	ea := ActualVaporPressure(dewC)

	wind := WindSpeed(u, v)
	if c.WindHeight > 0 && c.WindHeight != 2 {
		wind = WindSpeedAtStandardHeight(wind, c.WindHeight)
	}

	rns := NetShortwave(rs, c.Albedo)
	rnl := NetLongwave(tmean, ea, rs)
	rn := NetRadiation(rns, rnl)

	slope := VaporPressureSlope(tmean)
	gamma := PsychrometricConstant(p, c.Cp, c.Epsilon, c.Lambda)

	// The denominator is positive for all physical inputs; zero or
	// NaN marks the cell as missing instead of dividing through.
	denom := slope + gamma*(1+0.34*wind)
	if denom == 0 || math.IsNaN(denom) {
		return math.NaN()
	}
	pet := (radToMM*slope*(rn-c.SoilHeatFlux) +
		gamma*(900/(tmean+273))*wind*(es-ea)) / denom
	if math.IsInf(pet, 0) {
		return math.NaN()
	}
	return pet
}

// Series returns an iterator that computes the evapotranspiration
// grid for each successive day produced by src. The iterator returns
// io.EOF after the last day. msgChan, if non-nil, receives a
// progress message for each completed day.
func (e *PETEngine) Series(src DailySource, msgChan chan string) NextPET {
	return func() (*PETGrid, error) {
		f, err := src.Next()
		if err != nil {
			return nil, err
		}
		g, err := e.Daily(f)
		if err != nil {
			return nil, err
		}
		if msgChan != nil {
			msgChan <- fmt.Sprintf("Finished calculating PET for %s.",
				f.Time.Format(inDateFormat))
		}
		return g, nil
	}
}
