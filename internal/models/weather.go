package models

import (
	"fmt"
	"strings"
)

// LocationID selects one of the fixed observation sites. Values match the settings selector index.
type LocationID int

const (
	BeijingGuoFengMeiLun LocationID = iota
	BeijingZhongGuanCun
	ShiJiaZhuangWorkerHospital
	QinHuangDaoLuLong
)

// LocationCount is the number of known sites.
const LocationCount = 4

func (l LocationID) String() string {
	switch l {
	case BeijingGuoFengMeiLun:
		return "beijing_guofengmeilun"
	case BeijingZhongGuanCun:
		return "beijing_zhongguancun"
	case ShiJiaZhuangWorkerHospital:
		return "shijiazhuang_worker_hospital"
	case QinHuangDaoLuLong:
		return "qinhuangdao_lulong"
	default:
		return fmt.Sprintf("location(%d)", int(l))
	}
}

// WeatherOptions controls which sections a detailed-weather query parses.
type WeatherOptions uint8

const (
	WeatherNow            WeatherOptions = 1 << iota // current conditions
	WeatherForecast                                  // multi-day forecast
	WeatherDetailForecast                            // hourly forecast for today
	WeatherAlarm                                     // reserved, never requested
)

// Has reports whether every bit of o is set.
func (w WeatherOptions) Has(o WeatherOptions) bool {
	return w&o == o
}

func (w WeatherOptions) String() string {
	var parts []string
	if w.Has(WeatherNow) {
		parts = append(parts, "now")
	}
	if w.Has(WeatherForecast) {
		parts = append(parts, "forecast")
	}
	if w.Has(WeatherDetailForecast) {
		parts = append(parts, "detail_forecast")
	}
	if w.Has(WeatherAlarm) {
		parts = append(parts, "alarm")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

const nodeSeparator = "---------------------"

// ForecastNode holds one time slot's display strings. An empty field is absent and is not rendered.
type ForecastNode struct {
	Date          string `json:"date"`
	Astro         string `json:"astro,omitempty"`
	Condition     string `json:"condition,omitempty"`
	Temperature   string `json:"temperature,omitempty"`
	Humidity      string `json:"humidity,omitempty"`
	Probability   string `json:"probability,omitempty"`
	Precipitation string `json:"precipitation,omitempty"`
	Pressure      string `json:"pressure,omitempty"`
	UV            string `json:"uv,omitempty"`
	Visibility    string `json:"visibility,omitempty"`
	Wind          string `json:"wind,omitempty"`
}

// String renders the node as a separator line, the date, then every present field in fixed order.
func (n ForecastNode) String() string {
	var b strings.Builder
	b.WriteString(nodeSeparator)
	b.WriteString("\n")
	b.WriteString(n.Date)
	for _, f := range []string{
		n.Condition, n.Astro, n.Temperature, n.Humidity, n.Probability,
		n.Precipitation, n.Pressure, n.UV, n.Visibility, n.Wind,
	} {
		if f != "" {
			b.WriteString("\n")
			b.WriteString(f)
		}
	}
	return b.String()
}

// WeatherReport accumulates the detailed-weather sections of one query.
// Reports are query-scoped; a new query starts from a zero value.
type WeatherReport struct {
	Now      *ForecastNode  `json:"now,omitempty"`
	AQI      string         `json:"aqi,omitempty"`
	Forecast []ForecastNode `json:"forecast,omitempty"`
	Hourly   []ForecastNode `json:"hourly,omitempty"`
}

// String concatenates the non-empty sections in order: current conditions, AQI, forecast days, hourly.
func (r WeatherReport) String() string {
	var b strings.Builder
	if r.Now != nil {
		b.WriteString(r.Now.String())
		b.WriteString("\n")
	}
	if r.AQI != "" {
		b.WriteString(r.AQI)
		b.WriteString("\n")
	}
	for _, n := range r.Forecast {
		b.WriteString(n.String())
		b.WriteString("\n")
	}
	for _, n := range r.Hourly {
		b.WriteString(n.String())
		b.WriteString("\n")
	}
	return b.String()
}

// IsEmpty reports whether no section was parsed.
func (r WeatherReport) IsEmpty() bool {
	return r.Now == nil && r.AQI == "" && len(r.Forecast) == 0 && len(r.Hourly) == 0
}

// NormalizePollutant maps the provider's "pm25" label (any case) to "pm2.5"; other labels pass through.
func NormalizePollutant(name string) string {
	if strings.EqualFold(name, "pm25") {
		return "pm2.5"
	}
	return name
}
