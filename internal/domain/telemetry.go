package domain

import (
	"math"
	"time"
)

// GlobeRadius is the fixed radius of the rendering coordinate sphere.
// Shared by every spatial fragment so all positions land on the same shell.
const GlobeRadius = 4.2

// TimestampLayout is the wire format for snapshot timestamps: ISO-8601 UTC
// with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in the snapshot wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Clamp bounds v to [min, max].
func Clamp(v, min, max float64) float64 {
	return math.Min(math.Max(v, min), max)
}

// SphericalToCartesian converts a WGS-84 latitude/longitude to a point on
// the globe shell. The axis convention (negated x, lon offset by 180°)
// matches the downstream renderer and must not change.
func SphericalToCartesian(lat, lon, radius float64) Vec3 {
	phi := (90 - lat) * math.Pi / 180
	theta := (lon + 180) * math.Pi / 180
	return Vec3{
		-(radius * math.Sin(phi) * math.Cos(theta)),
		radius * math.Cos(phi),
		radius * math.Sin(phi) * math.Sin(theta),
	}
}

// GlobePosition is SphericalToCartesian at the shared globe radius.
func GlobePosition(lat, lon float64) Vec3 {
	return SphericalToCartesian(lat, lon, GlobeRadius)
}

// SeismicIntensity maps an earthquake magnitude to a 0..1 display intensity.
// Magnitude 2.0 maps to 0, magnitude 9.0 and above to 1.
func SeismicIntensity(magnitude float64) float64 {
	return Clamp((magnitude-2.0)/7.0, 0, 1)
}

// FlareClass classifies a GOES X-ray flux (W/m²) into the standard flare
// scale. Thresholds are exclusive upper bounds; non-positive flux reads as A.
func FlareClass(flux float64) string {
	switch {
	case flux <= 0:
		return "A"
	case flux < 1e-7:
		return "A"
	case flux < 1e-6:
		return "B"
	case flux < 1e-5:
		return "C"
	case flux < 1e-4:
		return "M"
	default:
		return "X"
	}
}

// StormLevel classifies a >=10 MeV integral proton flux (pfu) into the NOAA
// solar radiation storm scale.
func StormLevel(flux float64) string {
	switch {
	case flux >= 100000:
		return "S5"
	case flux >= 10000:
		return "S4"
	case flux >= 1000:
		return "S3"
	case flux >= 100:
		return "S2"
	case flux >= 10:
		return "S1"
	default:
		return "None"
	}
}

// KpLoad maps a planetary K-index to the 0..1 core load metric.
func KpLoad(kp float64) float64 {
	return Clamp(kp/9.0, 0, 1)
}
