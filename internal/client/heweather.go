package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/models"
)

const (
	HeWeatherSourceName     = "heweather"
	DefaultHeWeatherBaseURL = "https://free-api.heweather.com"
	// DefaultHeWeatherStation is Beijing city, used for an unknown location.
	DefaultHeWeatherStation = "CN101010100"
)

var heWeatherStations = map[models.LocationID]string{
	models.BeijingGuoFengMeiLun:       "CN101010600", // Tongzhou, Beijing
	models.BeijingZhongGuanCun:        "CN101010200", // Haidian, Beijing
	models.ShiJiaZhuangWorkerHospital: "CN101090101", // Shijiazhuang
	models.QinHuangDaoLuLong:          "CN101091105", // Lulong County, Qinhuangdao
}

// HeWeatherStation returns the city code for location; ok is false for an unknown location.
func HeWeatherStation(location models.LocationID) (station string, ok bool) {
	station, ok = heWeatherStations[location]
	return station, ok
}

// HeWeatherClient queries the HeWeather v5 combined weather endpoint.
type HeWeatherClient struct {
	source
	apiKey  string
	baseURL string
	now     func() time.Time
}

// NewHeWeatherClient creates the detailed-weather provider. An empty apiKey is allowed; the
// upstream then answers with an error status that surfaces as the result text.
func NewHeWeatherClient(apiKey, baseURL string, timeout time.Duration, logger *zap.Logger) *HeWeatherClient {
	if baseURL == "" {
		baseURL = DefaultHeWeatherBaseURL
	}
	c := &HeWeatherClient{
		source:  newSource(HeWeatherSourceName, timeout, logger),
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
	if apiKey == "" {
		c.logger.Warn("no HeWeather API key configured")
	}
	return c
}

func (c *HeWeatherClient) Name() string { return c.name }

func (c *HeWeatherClient) weatherURL(location models.LocationID) string {
	station, ok := HeWeatherStation(location)
	if !ok {
		c.logger.Warn("unknown location, using default city",
			zap.Int("location", int(location)),
			zap.String("station", DefaultHeWeatherStation),
		)
		station = DefaultHeWeatherStation
	}
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("city", station)
	return c.baseURL + "/v5/weather?" + params.Encode()
}

// Query returns the rendered report for location. Failure texts end in a newline so they sit
// on their own line below the AQI block.
func (c *HeWeatherClient) Query(ctx context.Context, location models.LocationID, options models.WeatherOptions) (string, error) {
	body, err := c.fetch(ctx, c.weatherURL(location))
	if err != nil {
		return "", c.fail(err, "\n")
	}
	report, err := ParseHeWeather(body, options, c.now())
	if err != nil {
		return "", c.rejected(err, "\n")
	}
	return report.String(), nil
}

// ParseHeWeather extracts the sections of a HeWeather5 document. Daily and hourly forecasts are
// read only when options request them; now is the fallback date for nodes without one.
func ParseHeWeather(body []byte, options models.WeatherOptions, now time.Time) (models.WeatherReport, error) {
	var report models.WeatherReport

	root, err := decodeObject(body)
	if err != nil {
		return report, err
	}
	nodes, ok := lookupArray(root, "HeWeather5")
	if !ok || len(nodes) == 0 {
		return report, schemaErr("HeWeather5 empty")
	}
	node, ok := nodes[0].(map[string]any)
	if !ok {
		return report, schemaErr("HeWeather5[0] is not an object")
	}
	if v, _ := lookupString(node, "status"); v != "ok" {
		return report, schemaErr("HeWeather5[0].status is %q", v)
	}

	if aqi, ok := lookupObject(node, "aqi"); ok {
		if city, ok := lookupObject(aqi, "city"); ok {
			report.AQI = parseCityAQI(city)
		}
	}
	if cur, ok := lookupObject(node, "now"); ok {
		n := parseNode(cur, now)
		report.Now = &n
	}
	if options.Has(models.WeatherForecast) {
		report.Forecast = parseNodes(node, "daily_forecast", now)
	}
	if options.Has(models.WeatherDetailForecast) {
		report.Hourly = parseNodes(node, "hourly_forecast", now)
	}
	return report, nil
}

// parseCityAQI renders "AQI:{aqi} (PM10:{pm10}, PM2.5:{pm25}) {qlty}" from the parts present.
func parseCityAQI(city map[string]any) string {
	var parts []string
	if v, ok := lookupString(city, "aqi"); ok {
		parts = append(parts, "AQI:"+v)
	}
	var pm []string
	if v, ok := lookupString(city, "pm10"); ok {
		pm = append(pm, "PM10:"+v)
	}
	if v, ok := lookupString(city, "pm25"); ok {
		pm = append(pm, "PM2.5:"+v)
	}
	if len(pm) > 0 {
		parts = append(parts, "("+strings.Join(pm, ", ")+")")
	}
	if v, ok := lookupString(city, "qlty"); ok {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

func parseNodes(node map[string]any, key string, now time.Time) []models.ForecastNode {
	items, ok := lookupArray(node, key)
	if !ok {
		return nil
	}
	out := make([]models.ForecastNode, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, parseNode(obj, now))
	}
	return out
}

const fallbackDateLayout = "Jan 2, 2006, 3:04:05 PM"

func parseNode(data map[string]any, now time.Time) models.ForecastNode {
	var n models.ForecastNode

	if v, ok := lookupString(data, "date"); ok {
		n.Date = v
	} else {
		n.Date = now.Format(fallbackDateLayout)
	}

	if astro, ok := lookupObject(data, "astro"); ok {
		sr, ok1 := lookupString(astro, "sr")
		ss, ok2 := lookupString(astro, "ss")
		mr, ok3 := lookupString(astro, "mr")
		ms, ok4 := lookupString(astro, "ms")
		if ok1 && ok2 && ok3 && ok4 {
			n.Astro = fmt.Sprintf("Sunrise/Sunset: %s - %s\nMoonrise/Moonset: %s - %s", sr, ss, mr, ms)
		}
	}

	if cond, ok := lookupObject(data, "cond"); ok {
		if v, ok := lookupString(cond, "txt"); ok {
			n.Condition = v
		} else {
			day, ok1 := lookupString(cond, "txt_d")
			night, ok2 := lookupString(cond, "txt_n")
			if ok1 && ok2 {
				n.Condition = fmt.Sprintf("Day: %s, Night: %s", day, night)
			}
		}
	}

	if tmp, ok := temperature(data); ok {
		n.Temperature = "Temperature: " + tmp
		if fl, ok := lookupString(data, "fl"); ok {
			n.Temperature += "; Feels like: " + fl
		}
	}

	if v, ok := lookupString(data, "hum"); ok {
		n.Humidity = "Relative humidity: " + v + "%"
	}
	if p, ok := lookupNumber(data, "pop"); ok && p > 0 {
		n.Probability = "Precipitation probability: " + formatNumber(p) + "%"
	}
	if p, ok := lookupNumber(data, "pcpn"); ok && p > 0 {
		n.Precipitation = "Precipitation: " + formatNumber(p) + "mm"
	}
	if v, ok := lookupString(data, "pres"); ok {
		n.Pressure = "Pressure: " + v + "hPa"
	}
	if v, ok := lookupString(data, "uv"); ok {
		n.UV = "UV index: " + v
	}
	if v, ok := lookupString(data, "vis"); ok {
		n.Visibility = "Visibility: " + v + "km"
	}
	if wind, ok := lookupObject(data, "wind"); ok {
		n.Wind = describeWind(wind)
	}
	return n
}

// temperature reads tmp as a scalar or as a {min, max} range.
func temperature(data map[string]any) (string, bool) {
	if v, ok := lookupString(data, "tmp"); ok {
		return v, true
	}
	rng, ok := lookupObject(data, "tmp")
	if !ok {
		return "", false
	}
	lo, ok1 := lookupString(rng, "min")
	hi, ok2 := lookupString(rng, "max")
	if !ok1 || !ok2 {
		return "", false
	}
	return lo + "~" + hi, true
}

func describeWind(wind map[string]any) string {
	var parts []string
	if v, ok := lookupString(wind, "dir"); ok {
		parts = append(parts, v)
	}
	if v, ok := lookupString(wind, "sc"); ok {
		parts = append(parts, "scale "+v)
	}
	if v, ok := lookupString(wind, "spd"); ok {
		parts = append(parts, v+"km/h")
	}
	if len(parts) == 0 {
		return ""
	}
	return "Wind: " + strings.Join(parts, ", ")
}
