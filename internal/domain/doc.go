// Package domain models the normalized planetary telemetry snapshot and the
// pure functions that derive it from six public upstream feeds.
//
// # Data Sources
//
// Each snapshot merges fragments from six independent feeds:
//
//	seismic    USGS earthquake GeoJSON summary (magnitude 2.5+, past hour)
//	kp         NOAA SWPC planetary K-index, 1-minute cadence
//	solar      NOAA SWPC GOES X-ray flux, RTSW plasma, and integral protons
//	volcanoes  USGS HANS elevated-volcano list (aviation color codes)
//	climate    NOAA GML Mauna Loa weekly CO2 CSV
//	weather    Open-Meteo current surface temperature
//
// # Conventions
//
// Positions:
//
//	All spatial fragments are projected from (lat, lon) onto a sphere of
//	radius 4.2 via [SphericalToCartesian]. The axis handedness matches the
//	downstream globe renderer; the conversion is part of the wire contract.
//
// Flare classes:
//
//	GOES long-band X-ray flux in W/m², exclusive upper bounds:
//	  <1e-7 A | <1e-6 B | <1e-5 C | <1e-4 M | otherwise X
//	Non-positive flux (sensor gap) reads as class A.
//
// Radiation storm levels:
//
//	>=10 MeV integral proton flux in pfu, NOAA S-scale:
//	  >=1e5 S5 | >=1e4 S4 | >=1e3 S3 | >=100 S2 | >=10 S1 | otherwise None
//
// Seismic intensity:
//
//	clamp((magnitude - 2.0) / 7.0, 0, 1): the feed's floor magnitude maps
//	to 0, magnitude 9 saturates at 1.
//
// Defaults:
//
//	Metrics are never partial. A failed feed substitutes its documented
//	default (placeholder seismic event, quiet-sun solar fragment, 288 K
//	crust temperature, 420 ppm CO2, empty volcano list, zero core load)
//	and the failure is recorded under meta.sources.
package domain
