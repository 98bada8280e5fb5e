package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const openWeatherMapURL = "https://api.openweathermap.org/data/2.5"

// OpenWeatherMap is the Weather implementation backed by the
// OpenWeatherMap 2.5 API.
type OpenWeatherMap struct {
	apiKey      string
	baseURL     string
	defaultCity string
	httpClient  *http.Client
}

// NewWeather returns nil when apiKey is empty.
func NewWeather(apiKey, defaultCity, baseURL string) Weather {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = openWeatherMapURL
	}
	return &OpenWeatherMap{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		defaultCity: defaultCity,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type owmReading struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (r owmReading) description() string {
	if len(r.Weather) == 0 {
		return ""
	}
	return r.Weather[0].Description
}

// Current returns the current conditions in city, or the default city.
func (w *OpenWeatherMap) Current(ctx context.Context, city string) (*CurrentWeather, error) {
	var data struct {
		owmReading
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
	}
	if err := w.get(ctx, "/weather", city, nil, &data); err != nil {
		return nil, err
	}
	return &CurrentWeather{
		City:        data.Name,
		Country:     data.Sys.Country,
		Temperature: data.Main.Temp,
		FeelsLike:   data.Main.FeelsLike,
		Humidity:    data.Main.Humidity,
		Description: data.description(),
		WindSpeed:   data.Wind.Speed,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// Forecast returns three-hour steps for up to five days.
func (w *OpenWeatherMap) Forecast(ctx context.Context, city string, days int) ([]ForecastEntry, error) {
	if days <= 0 || days > 5 {
		days = 5
	}
	var data struct {
		List []struct {
			owmReading
			DtTxt string `json:"dt_txt"`
		} `json:"list"`
	}
	extra := url.Values{"cnt": {strconv.Itoa(days * 8)}}
	if err := w.get(ctx, "/forecast", city, extra, &data); err != nil {
		return nil, err
	}

	out := make([]ForecastEntry, 0, len(data.List))
	for _, item := range data.List {
		out = append(out, ForecastEntry{
			DateTime:    item.DtTxt,
			Temperature: item.Main.Temp,
			FeelsLike:   item.Main.FeelsLike,
			Humidity:    item.Main.Humidity,
			Description: item.description(),
			WindSpeed:   item.Wind.Speed,
		})
	}
	return out, nil
}

func (w *OpenWeatherMap) get(ctx context.Context, path, city string, extra url.Values, out any) error {
	if city == "" {
		city = w.defaultCity
	}
	q := url.Values{"q": {city}, "appid": {w.apiKey}, "units": {"metric"}}
	for k, v := range extra {
		q[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weather request failed: %w", err)
	}
	return decodeResponse(resp, out, "openweathermap")
}
