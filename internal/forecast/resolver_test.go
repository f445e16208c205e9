package forecast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const locationsJSON = `[{
	"Key": "348735",
	"LocalizedName": "Detroit",
	"AdministrativeArea": {"LocalizedName": "Michigan"}
}]`

const forecastsJSON = `{
	"DailyForecasts": [
		{
			"Date": "2024-06-11T07:00:00-04:00",
			"Temperature": {"Minimum": {"Value": 55, "Unit": "F"}, "Maximum": {"Value": 75, "Unit": "F"}},
			"Day": {"ShortPhrase": "Sunny", "PrecipitationProbability": 0},
			"Night": {"ShortPhrase": "Clear", "PrecipitationProbability": 1}
		},
		{
			"Date": "2024-06-12T07:00:00-04:00",
			"Temperature": {"Minimum": {"Value": 58.5, "Unit": "F"}, "Maximum": {"Value": 79, "Unit": "F"}},
			"Day": {"ShortPhrase": "Partly sunny", "PrecipitationProbability": 25},
			"Night": {"ShortPhrase": "Mostly cloudy", "PrecipitationProbability": 40}
		}
	]
}`

func newTestResolver(t *testing.T, handler http.HandlerFunc) *AccuWeather {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	resolver, err := NewAccuWeather(AccuWeatherConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resolver
}

func TestNewAccuWeather_RequiresBaseURLAndKey(t *testing.T) {
	if _, err := NewAccuWeather(AccuWeatherConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewAccuWeather(AccuWeatherConfig{BaseURL: "https://x"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestForecast_ResolvesTomorrow(t *testing.T) {
	var paths []string
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("missing apikey in %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/locations/v1/cities/search"):
			if r.URL.Query().Get("q") != "48226" {
				t.Errorf("unexpected search query %q", r.URL.Query().Get("q"))
			}
			w.Write([]byte(locationsJSON)) //nolint:errcheck
		case strings.HasPrefix(r.URL.Path, "/forecasts/v1/daily/5day/348735"):
			if r.URL.Query().Get("details") != "true" {
				t.Errorf("expected details=true in %s", r.URL.String())
			}
			w.Write([]byte(forecastsJSON)) //nolint:errcheck
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	report, err := resolver.Forecast(context.Background(), "48226")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected 2 upstream requests, got %v", paths)
	}
	if report.City != "Detroit" || report.State != "Michigan" {
		t.Fatalf("unexpected location %s, %s", report.City, report.State)
	}
	if report.DayPhrase != "Partly sunny" || report.DayPrecipitation != 25 {
		t.Fatalf("picked wrong daily entry: %+v", report)
	}
	if report.MinTemp != 58.5 || report.MaxTemp != 79 || report.TempUnit != "F" {
		t.Fatalf("unexpected temperatures: %+v", report)
	}
	if !report.Date.Equal(time.Date(2024, time.June, 12, 7, 0, 0, 0, time.FixedZone("", -4*3600))) {
		t.Fatalf("unexpected date %v", report.Date)
	}
}

func TestReport_Sentence(t *testing.T) {
	report := &Report{
		City:               "Detroit",
		State:              "Michigan",
		Date:               time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC),
		DayPhrase:          "Partly sunny",
		DayPrecipitation:   25,
		NightPhrase:        "Mostly cloudy",
		NightPrecipitation: 40,
		MinTemp:            58.5,
		MaxTemp:            79,
		TempUnit:           "F",
	}

	want := "The forecast for Detroit, Michigan on Wednesday, June 12 is as follows:\n" +
		"  During the day the weather will be Partly sunny with a 25% chance of precipitation.\n" +
		"  At night the weather will be Mostly cloudy with a 40% chance of precipitation.\n" +
		"  The temperature will range from 58.5°F to 79°F."
	if got := report.Sentence(); got != want {
		t.Fatalf("unexpected sentence:\n got: %q\nwant: %q", got, want)
	}
}

func TestForecast_NoLocationFound(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`)) //nolint:errcheck
	})

	_, err := resolver.Forecast(context.Background(), "00000")
	if !errors.Is(err, ErrNoLocationFound) {
		t.Fatalf("expected ErrNoLocationFound, got %v", err)
	}
}

func TestForecast_TooFewDailyEntries(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/locations") {
			w.Write([]byte(locationsJSON)) //nolint:errcheck
			return
		}
		//nolint:errcheck
		w.Write([]byte(`{"DailyForecasts": [{"Date": "2024-06-11T07:00:00-04:00"}]}`))
	})

	_, err := resolver.Forecast(context.Background(), "48226")
	if !errors.Is(err, ErrForecastUnavailable) {
		t.Fatalf("expected ErrForecastUnavailable, got %v", err)
	}
}

func TestForecast_UpstreamErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := resolver.Forecast(context.Background(), "48226")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{{{`)) //nolint:errcheck
		})
		_, err := resolver.Forecast(context.Background(), "48226")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		resolver, err := NewAccuWeather(AccuWeatherConfig{
			BaseURL: "http://127.0.0.1:1",
			APIKey:  "test-key",
			Timeout: 200 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err = resolver.Forecast(context.Background(), "48226")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})
}
