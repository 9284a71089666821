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
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func TestTemperatureRoundTrip(t *testing.T) {
	const tolerance = 1.0e-9

	temp := sparse.ZerosDense(2, 2)
	temp.Elements = []float64{273.15, 293.15, 303.15, math.NaN()}
	result := CelsiusToKelvin(KelvinToCelsius(temp))
	for i, want := range temp.Elements {
		have := result.Elements[i]
		if math.IsNaN(want) {
			if !math.IsNaN(have) {
				t.Errorf("element %d: want NaN but have %g", i, have)
			}
			continue
		}
		if math.Abs(have-want) > tolerance {
			t.Errorf("element %d: want %g but have %g", i, want, have)
		}
	}
}

func TestKelvinToCelsius(t *testing.T) {
	const tolerance = 1.0e-9

	temp := sparse.ZerosDense(1, 2)
	temp.Elements = []float64{273.15, 303.15}
	result := KelvinToCelsius(temp)
	want := []float64{0, 30}
	for i, w := range want {
		if math.Abs(result.Elements[i]-w) > tolerance {
			t.Errorf("element %d: want %g but have %g", i, w, result.Elements[i])
		}
	}
}

func TestPaToKPa(t *testing.T) {
	const tolerance = 1.0e-9

	p := sparse.ZerosDense(1, 2)
	p.Elements = []float64{101325, math.NaN()}
	result := PaToKPa(p)
	if math.Abs(result.Elements[0]-101.325) > tolerance {
		t.Errorf("want 101.325 but have %g", result.Elements[0])
	}
	if !math.IsNaN(result.Elements[1]) {
		t.Errorf("want NaN but have %g", result.Elements[1])
	}
}

func TestJoulesToMegajoules(t *testing.T) {
	const tolerance = 1.0e-9

	r := sparse.ZerosDense(1, 2)
	r.Elements = []float64{15.0e6, 0}
	result := JoulesToMegajoules(r)
	want := []float64{15, 0}
	for i, w := range want {
		if math.Abs(result.Elements[i]-w) > tolerance {
			t.Errorf("element %d: want %g but have %g", i, w, result.Elements[i])
		}
	}
}
