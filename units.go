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

import "github.com/ctessum/sparse"

const (
	kelvinOffset = 273.15 // [K]
	paPerKPa     = 1000.  // [Pa kPa-1]
	jPerMJ       = 1.0e6  // [J MJ-1]
)

// KelvinToCelsius converts temperature from degrees Kelvin to
// degrees Celsius. NaN values pass through unchanged.
func KelvinToCelsius(t *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(t.Shape...)
	for i, v := range t.Elements {
		out.Elements[i] = v - kelvinOffset
	}
	return out
}

// CelsiusToKelvin converts temperature from degrees Celsius to
// degrees Kelvin.
func CelsiusToKelvin(t *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(t.Shape...)
	for i, v := range t.Elements {
		out.Elements[i] = v + kelvinOffset
	}
	return out
}

// PaToKPa converts pressure from pascals to kilopascals.
func PaToKPa(p *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(p.Shape...)
	for i, v := range p.Elements {
		out.Elements[i] = v / paPerKPa
	}
	return out
}

// JoulesToMegajoules converts accumulated radiation from J m-2 to
// MJ m-2.
func JoulesToMegajoules(r *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(r.Shape...)
	for i, v := range r.Elements {
		out.Elements[i] = v / jPerMJ
	}
	return out
}
