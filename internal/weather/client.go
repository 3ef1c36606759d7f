package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Current is the subset of the Open-Meteo response the dashboard shows.
type Current struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
	Time        string  `json:"time"`
}

// Client fetches current weather from the Open-Meteo forecast API for the
// campus coordinates. The portal proxies it so browsers hit one origin.
type Client struct {
	BaseURL string
	Lat     float64
	Lon     float64
	HTTP    *http.Client
}

// New creates a weather client for a fixed location.
func New(baseURL string, lat, lon float64) *Client {
	return &Client{
		BaseURL: baseURL,
		Lat:     lat,
		Lon:     lon,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch returns the current weather at the configured coordinates.
func (c *Client) Fetch(ctx context.Context) (*Current, error) {
	url := fmt.Sprintf("%s?latitude=%g&longitude=%g&current_weather=true", c.BaseURL, c.Lat, c.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather service error %s: %s", resp.Status, string(body))
	}

	var out struct {
		CurrentWeather Current `json:"current_weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	return &out.CurrentWeather, nil
}
