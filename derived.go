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

import "math"

const (
	// sigma is the Stefan-Boltzmann constant expressed per day
	// [MJ K-4 m-2 day-1] (FAO-56 equation 39).
	sigma = 4.903e-9

	// radToMM converts an energy flux [MJ m-2 day-1] to the
	// equivalent depth of evaporated water [mm day-1]
	// (FAO-56 equation 20; the inverse of the latent heat of
	// vaporization).
	radToMM = 0.408

	// esSingularity is the air temperature [°C] at which the
	// saturation vapor pressure formulation becomes singular.
	esSingularity = -237.3
)

// SaturationVaporPressure returns the saturation vapor pressure
// [kPa] at air temperature t [°C] (FAO-56 equation 11). It returns
// NaN if t is NaN or does not exceed -237.3 °C, where the
// formulation is undefined.
func SaturationVaporPressure(t float64) float64 {
	if !(t > esSingularity) {
		return math.NaN()
	}
	return 0.6108 * math.Exp(17.27*t/(t+237.3))
}

// ActualVaporPressure returns the actual vapor pressure [kPa] given
// the dewpoint temperature td [°C] (FAO-56 equation 14). By
// definition the air is saturated at the dewpoint, so this is the
// saturation vapor pressure evaluated at td.
func ActualVaporPressure(td float64) float64 {
	return SaturationVaporPressure(td)
}

// WindSpeed returns the magnitude [m s-1] of the wind vector with
// eastward and northward components u and v [m s-1].
func WindSpeed(u, v float64) float64 {
	return math.Sqrt(u*u + v*v)
}

// WindSpeedAtStandardHeight converts the wind speed uz [m s-1]
// measured at height z [m] to the equivalent speed at the standard
// 2-m measurement height using the logarithmic wind profile (FAO-56
// equation 47). It returns NaN if z is too small for the profile to
// be defined.
func WindSpeedAtStandardHeight(uz, z float64) float64 {
	d := 67.8*z - 5.42
	if !(d > 1) {
		return math.NaN()
	}
	return uz * 4.87 / math.Log(d)
}

// NetShortwave returns the net shortwave radiation [MJ m-2 day-1]
// absorbed by a surface with the given albedo from incoming solar
// radiation rs [MJ m-2 day-1] (FAO-56 equation 38).
func NetShortwave(rs, albedo float64) float64 {
	return rs * (1 - albedo)
}

// NetLongwave returns the net outgoing longwave radiation
// [MJ m-2 day-1] given the daily mean air temperature tmean [°C],
// the actual vapor pressure ea [kPa], and the incoming solar
// radiation rs [MJ m-2 day-1].
//
// The formulation reproduces the legacy ETMap pipeline: the
// Stefan-Boltzmann term raises the Celsius mean temperature to the
// fourth power rather than its Kelvin equivalent, and the relative
// shortwave term is rs/0.8 with no clear-sky ceiling. Both deviate
// from FAO-56 equation 39 and are kept for continuity with
// previously published output rather than corrected.
func NetLongwave(tmean, ea, rs float64) float64 {
	t4 := tmean * tmean * tmean * tmean
	return sigma * t4 * (0.34 - 0.14*math.Sqrt(ea)) * (1.35*(rs/0.8) - 0.35)
}

// NetRadiation returns the net radiation [MJ m-2 day-1] at the
// surface, the difference between net shortwave and net longwave
// radiation (FAO-56 equation 40).
func NetRadiation(rns, rnl float64) float64 {
	return rns - rnl
}

// VaporPressureSlope returns the slope of the saturation vapor
// pressure curve [kPa °C-1] at air temperature t [°C] (FAO-56
// equation 13).
func VaporPressureSlope(t float64) float64 {
	es := SaturationVaporPressure(t)
	return 4098 * es / ((t + 237.3) * (t + 237.3))
}

// PsychrometricConstant returns the psychrometric constant
// [kPa °C-1] at atmospheric pressure p [kPa] (FAO-56 equation 8).
// cp is the specific heat of moist air [MJ kg-1 °C-1], epsilon the
// ratio of the molecular weights of water vapor and dry air, and
// lambda the latent heat of vaporization [MJ kg-1]. It returns NaN
// if epsilon*lambda is zero.
func PsychrometricConstant(p, cp, epsilon, lambda float64) float64 {
	d := epsilon * lambda
	if d == 0 {
		return math.NaN()
	}
	return cp * p / d
}
