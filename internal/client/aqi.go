package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/models"
)

const (
	AQISourceName     = "aqicn"
	DefaultAQIBaseURL = "https://api.waqi.info"
	// DefaultAQIStation is used for an unknown location.
	DefaultAQIStation = "1451"
)

// aqiStations maps each site to its nearest air-quality observation station.
var aqiStations = map[models.LocationID]string{
	models.BeijingGuoFengMeiLun:       "460",  // BDA, Yizhuang
	models.BeijingZhongGuanCun:        "452",  // Wanliu, Haidian
	models.ShiJiaZhuangWorkerHospital: "644",  // Worker Hospital
	models.QinHuangDaoLuLong:          "5614", // Lulong County
}

// AQIStation returns the station for location; ok is false for an unknown location.
func AQIStation(location models.LocationID) (station string, ok bool) {
	station, ok = aqiStations[location]
	return station, ok
}

// AQIClient queries the aqicn.org concise feed.
type AQIClient struct {
	source
	baseURL string
}

func NewAQIClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AQIClient {
	if baseURL == "" {
		baseURL = DefaultAQIBaseURL
	}
	return &AQIClient{
		source:  newSource(AQISourceName, timeout, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *AQIClient) Name() string { return c.name }

func (c *AQIClient) stationURL(location models.LocationID) string {
	station, ok := AQIStation(location)
	if !ok {
		c.logger.Warn("unknown location, using default station",
			zap.Int("location", int(location)),
			zap.String("station", DefaultAQIStation),
		)
		station = DefaultAQIStation
	}
	return fmt.Sprintf("%s/api/feed/@%s/now.json", c.baseURL, station)
}

// Query returns the AQI block for location. A document that fails the schema gate yields an
// empty result without error. options is ignored.
func (c *AQIClient) Query(ctx context.Context, location models.LocationID, _ models.WeatherOptions) (string, error) {
	body, err := c.fetch(ctx, c.stationURL(location))
	if err != nil {
		return "", c.fail(err, "")
	}
	result, err := ParseAQI(body)
	if err != nil {
		return "", c.rejected(err, "")
	}
	return result, nil
}

// ParseAQI renders an aqicn feed document:
//
//	{time.s}, {time.tz}
//	Site: {city.name}
//	AQI: {aqi}
//	Dominent Pollution: {dominentpol}
//	<from aqicn.org>
//
// A missing aqi reads as 0. Other missing optional fields drop their line.
func ParseAQI(body []byte) (string, error) {
	root, err := decodeObject(body)
	if err != nil {
		return "", err
	}
	rxs, ok := lookupObject(root, "rxs")
	if !ok {
		return "", schemaErr("rxs missing")
	}
	if v, _ := lookupString(rxs, "ver"); v != "1" {
		return "", schemaErr("rxs.ver is %q", v)
	}
	if v, _ := lookupString(rxs, "status"); v != "ok" {
		return "", schemaErr("rxs.status is %q", v)
	}
	obs, ok := lookupArray(rxs, "obs")
	if !ok || len(obs) == 0 {
		return "", schemaErr("rxs.obs empty")
	}
	first, ok := obs[0].(map[string]any)
	if !ok {
		return "", schemaErr("rxs.obs[0] is not an object")
	}
	if v, _ := lookupString(first, "status"); v != "ok" {
		return "", schemaErr("rxs.obs[0].status is %q", v)
	}
	msg, ok := lookupObject(first, "msg")
	if !ok {
		return "", schemaErr("msg missing")
	}
	city, _ := lookupObject(msg, "city")
	site, ok := lookupString(city, "name")
	if !ok {
		return "", schemaErr("city.name missing")
	}

	aqi, _ := lookupNumber(msg, "aqi")

	var b strings.Builder
	tm, _ := lookupObject(msg, "time")
	var when []string
	if s, ok := lookupString(tm, "s"); ok {
		when = append(when, s)
	}
	if tz, ok := lookupString(tm, "tz"); ok {
		when = append(when, tz)
	}
	if len(when) > 0 {
		b.WriteString(strings.Join(when, ", "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Site: %s\n", site)
	fmt.Fprintf(&b, "AQI: %d\n", int(aqi))
	if pol, ok := lookupString(msg, "dominentpol"); ok {
		fmt.Fprintf(&b, "Dominent Pollution: %s\n", models.NormalizePollutant(pol))
	}
	b.WriteString("<from aqicn.org>\n")
	return b.String(), nil
}
