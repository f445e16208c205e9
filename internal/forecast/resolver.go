// Package forecast resolves a US ZIP code to a spoken weather forecast.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrNoLocationFound means the ZIP code matched no known location.
	ErrNoLocationFound = errors.New("forecast: no location found")

	// ErrForecastUnavailable means the location was found but the daily
	// forecast list was too short to contain tomorrow's entry.
	ErrForecastUnavailable = errors.New("forecast: forecast unavailable")

	// ErrUpstreamUnavailable covers transport failures and non-success
	// responses from the weather service.
	ErrUpstreamUnavailable = errors.New("forecast: upstream unavailable")
)

// Report is one day's forecast for a resolved location.
type Report struct {
	City               string    `json:"city"`
	State              string    `json:"state"`
	Date               time.Time `json:"date"`
	DayPhrase          string    `json:"day_phrase"`
	DayPrecipitation   int       `json:"day_precipitation_pct"`
	NightPhrase        string    `json:"night_phrase"`
	NightPrecipitation int       `json:"night_precipitation_pct"`
	MinTemp            float64   `json:"min_temp"`
	MaxTemp            float64   `json:"max_temp"`
	TempUnit           string    `json:"temp_unit"`
}

// Sentence renders the report as the spoken response.
func (r *Report) Sentence() string {
	return fmt.Sprintf("The forecast for %s, %s on %s is as follows:\n"+
		"  During the day the weather will be %s with a %d%% chance of precipitation.\n"+
		"  At night the weather will be %s with a %d%% chance of precipitation.\n"+
		"  The temperature will range from %s°%s to %s°%s.",
		r.City, r.State, r.Date.Format("Monday, January 02"),
		r.DayPhrase, r.DayPrecipitation,
		r.NightPhrase, r.NightPrecipitation,
		formatTemp(r.MinTemp), r.TempUnit, formatTemp(r.MaxTemp), r.TempUnit)
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Resolver resolves a 5-digit ZIP code to a forecast report. The lookup is
// single best-effort: no retries, and the caller converts failures to a
// spoken fallback rather than aborting the call.
type Resolver interface {
	Forecast(ctx context.Context, zip string) (*Report, error)
}

// AccuWeather implements Resolver against the AccuWeather data service:
// a location search keyed on the ZIP code followed by a 5-day daily
// forecast for the resolved location key. The report is the second daily
// entry, which is tomorrow's forecast (today is index 0).
type AccuWeather struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// AccuWeatherConfig holds configuration for the AccuWeather resolver.
type AccuWeatherConfig struct {
	// BaseURL of the data service (required).
	BaseURL string

	// APIKey authenticates requests (required).
	APIKey string

	// Timeout bounds each upstream request (default 10s).
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// NewAccuWeather creates an AccuWeather forecast resolver.
func NewAccuWeather(cfg AccuWeatherConfig) (*AccuWeather, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("forecast: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("forecast: API key is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &AccuWeather{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

type locationResult struct {
	Key                string `json:"Key"`
	LocalizedName      string `json:"LocalizedName"`
	AdministrativeArea struct {
		LocalizedName string `json:"LocalizedName"`
	} `json:"AdministrativeArea"`
}

type dailyForecast struct {
	Date        time.Time `json:"Date"`
	Temperature struct {
		Minimum tempValue `json:"Minimum"`
		Maximum tempValue `json:"Maximum"`
	} `json:"Temperature"`
	Day   dayPart `json:"Day"`
	Night dayPart `json:"Night"`
}

type tempValue struct {
	Value float64 `json:"Value"`
	Unit  string  `json:"Unit"`
}

type dayPart struct {
	ShortPhrase              string `json:"ShortPhrase"`
	PrecipitationProbability int    `json:"PrecipitationProbability"`
}

// Forecast resolves a ZIP code to tomorrow's forecast.
func (a *AccuWeather) Forecast(ctx context.Context, zip string) (*Report, error) {
	var locations []locationResult
	searchPath := "/locations/v1/cities/search?apikey=" + url.QueryEscape(a.apiKey) +
		"&q=" + url.QueryEscape(zip)
	if err := a.getJSON(ctx, searchPath, &locations); err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: zip %s", ErrNoLocationFound, zip)
	}
	loc := locations[0]

	var forecasts struct {
		DailyForecasts []dailyForecast `json:"DailyForecasts"`
	}
	forecastPath := "/forecasts/v1/daily/5day/" + url.PathEscape(loc.Key) +
		"?apikey=" + url.QueryEscape(a.apiKey) + "&details=true"
	if err := a.getJSON(ctx, forecastPath, &forecasts); err != nil {
		return nil, err
	}
	if len(forecasts.DailyForecasts) < 2 {
		return nil, fmt.Errorf("%w: %d daily entries for location %s",
			ErrForecastUnavailable, len(forecasts.DailyForecasts), loc.Key)
	}

	// Index 1 is tomorrow.
	day := forecasts.DailyForecasts[1]
	return &Report{
		City:               loc.LocalizedName,
		State:              loc.AdministrativeArea.LocalizedName,
		Date:               day.Date,
		DayPhrase:          day.Day.ShortPhrase,
		DayPrecipitation:   day.Day.PrecipitationProbability,
		NightPhrase:        day.Night.ShortPhrase,
		NightPrecipitation: day.Night.PrecipitationProbability,
		MinTemp:            day.Temperature.Minimum.Value,
		MaxTemp:            day.Temperature.Maximum.Value,
		TempUnit:           day.Temperature.Maximum.Unit,
	}, nil
}

func (a *AccuWeather) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}
