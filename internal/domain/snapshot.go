package domain

// Vec3 is a point in the fixed-radius globe coordinate space used by all
// spatial telemetry. Serialized as a JSON array [x, y, z].
type Vec3 [3]float64

// SeismicEvent is the most recent earthquake reported by the USGS feed,
// or a placeholder when the feed is down or empty.
type SeismicEvent struct {
	ID        string  `json:"id,omitempty"`
	Label     string  `json:"label"`
	Magnitude float64 `json:"magnitude"`
	Pos       Vec3    `json:"pos"`
	Intensity float64 `json:"intensity"` // 0..1, derived from magnitude
	Timestamp string  `json:"timestamp,omitempty"`
}

// Volcano is an elevated-alert volcano (ORANGE or RED aviation color code).
type Volcano struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Status string  `json:"status"` // "ORANGE" or "RED"
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Pos    Vec3    `json:"pos"`
}

// SolarTimestamps records the observation times of the X-ray and solar-wind
// readings that produced a SolarActivity fragment.
type SolarTimestamps struct {
	Xray string `json:"xray"`
	Wind string `json:"wind"`
}

// SolarActivity is the merged X-ray / solar-wind / proton fragment.
type SolarActivity struct {
	Flux        float64          `json:"flux"`
	Class       string           `json:"class"` // A, B, C, M, X
	WindSpeed   float64          `json:"windSpeed"`
	ProtonLevel string           `json:"protonLevel"` // None, S1..S5
	Timestamps  *SolarTimestamps `json:"timestamps,omitempty"`
	Density     float64          `json:"density,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

// Atmosphere carries the CO2 concentration and temperature anomaly.
type Atmosphere struct {
	CO2         float64 `json:"co2"` // ppm
	TempAnomaly float64 `json:"tempAnomaly"`
}

// Metrics is the merged telemetry object. Every field is always populated:
// feeds that fail contribute their documented default instead.
type Metrics struct {
	CoreLoad         float64      `json:"coreLoad"` // planetary K-index / 9, clamped 0..1
	MantleBandwidth  float64      `json:"mantleBandwidth"`
	CrustTemp        float64      `json:"crustTemp"` // Kelvin
	SolarWindFlux    float64      `json:"solarWindFlux"`
	LastSeismicEvent SeismicEvent `json:"lastSeismicEvent"`
	Volcanoes        []Volcano    `json:"volcanoes"`
	Solar            SolarActivity `json:"solar"`
	Atmosphere       Atmosphere    `json:"atmosphere"`
}

// Meta carries per-source observability reports alongside the metrics.
// Sources is keyed by feed name (seismic, kp, solar, volcanoes, climate,
// weather); each value is either an error report or a freshness marker.
type Meta struct {
	Timestamp string         `json:"timestamp"`
	Sources   map[string]any `json:"sources"`
}

// Snapshot is one complete, normalized telemetry reading. It is immutable
// once produced by the aggregator.
type Snapshot struct {
	Timestamp string  `json:"timestamp"`
	Metrics   Metrics `json:"metrics"`
	Meta      Meta    `json:"meta"`
}

// KpReading is the normalized planetary K-index fragment.
type KpReading struct {
	Kp        float64 `json:"kp"`
	Load      float64 `json:"load"` // kp/9, clamped 0..1
	Timestamp string  `json:"timestamp,omitempty"`
}

// CO2Reading is the normalized Mauna Loa CO2 fragment.
type CO2Reading struct {
	CO2    float64 `json:"co2"` // ppm, weekly average
	Date   string  `json:"date"`
	Source string  `json:"source"`
}

// WeatherSample is the normalized surface-weather fragment.
type WeatherSample struct {
	Source       string  `json:"source"`
	TemperatureC float64 `json:"temperatureC"`
	TemperatureK float64 `json:"temperatureK"`
}

// SolarPacket bundles the solar fragment with the derived bus metrics.
// Mirrors the upstream contract where mantle bandwidth and solar wind flux
// are both aliases of the plasma wind speed.
type SolarPacket struct {
	Solar           SolarActivity `json:"solar"`
	MantleBandwidth float64       `json:"mantleBandwidth"`
	SolarWindFlux   float64       `json:"solarWindFlux"`
	ProtonFlux      float64       `json:"protonFlux"`
}

// SourceError is a per-feed failure report published under meta.sources.
type SourceError struct {
	Error string `json:"error"`
}

// SourceUpdated is a per-feed freshness marker published under meta.sources.
type SourceUpdated struct {
	Updated string `json:"updated,omitempty"`
	Source  string `json:"source,omitempty"`
}

// VolcanoSourceReport records how many elevated volcanoes the feed returned.
type VolcanoSourceReport struct {
	Count int `json:"count"`
}

// Defaults substituted when a feed fails. CrustTemp is a rough global mean
// surface temperature; CO2 a recent Mauna Loa baseline.
const (
	DefaultCrustTempK = 288
	DefaultCO2PPM     = 420

	// Labels for the placeholder seismic event: SeismicLostLabel when the
	// feed itself failed, SeismicWaitingLabel when it was merely empty.
	SeismicLostLabel    = "SIGNAL LOST"
	SeismicWaitingLabel = "WAITING FOR SIGNAL..."

	// Fallback label for events whose place name is absent.
	UnknownPlaceLabel = "UNREGISTERED SIGNAL"
)

// DefaultSeismicEvent returns the placeholder event used when no real event
// is available. The label distinguishes a failed fetch from an empty feed.
func DefaultSeismicEvent(fetchFailed bool) SeismicEvent {
	label := SeismicWaitingLabel
	if fetchFailed {
		label = SeismicLostLabel
	}
	return SeismicEvent{
		Label:     label,
		Pos:       Vec3{1, 0, 0},
		Intensity: 0,
	}
}

// DefaultSolar returns the quiet-sun fragment used when the solar packet
// cannot be assembled.
func DefaultSolar() SolarActivity {
	return SolarActivity{Flux: 0, Class: "A", WindSpeed: 0, ProtonLevel: "None"}
}
