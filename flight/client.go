package flight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/avelio/prospect/internal/apifetch"
)

// ClientConfig configures the HTTP flight provider.
type ClientConfig struct {
	BaseURL   string            // flights endpoint
	AccessKey string            // ${ENV_VAR} expanded
	Headers   map[string]string // ${ENV_VAR} expanded
	Timeout   time.Duration
}

func (c *ClientConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Client calls a flight data API over HTTP.
type Client struct {
	http *http.Client
	cfg  ClientConfig
}

// NewClient builds the HTTP flight provider.
func NewClient(httpClient *http.Client, cfg ClientConfig) *Client {
	cfg.defaults()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, cfg: cfg}
}

// providerFlight mirrors the provider's response shape.
type providerFlight struct {
	FlightStatus string `json:"flight_status"`
	Airline      struct {
		Name string `json:"name"`
	} `json:"airline"`
	Flight struct {
		IATA string `json:"iata"`
	} `json:"flight"`
	Departure providerStop `json:"departure"`
	Arrival   providerStop `json:"arrival"`
}

type providerStop struct {
	Airport   string `json:"airport"`
	IATA      string `json:"iata"`
	Scheduled string `json:"scheduled"`
	Estimated string `json:"estimated"`
	Delay     int    `json:"delay"`
}

// Lookup fetches the current status of a flight. Provider errors wrap
// ErrProvider; an empty result set is ErrNotFound.
func (c *Client) Lookup(ctx context.Context, flightIATA string) (*Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("flight_iata", flightIATA)
	if c.cfg.AccessKey != "" {
		q.Set("access_key", expandEnv(c.cfg.AccessKey))
	}

	var resp struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Data []providerFlight `json:"data"`
	}
	err := apifetch.Do(ctx, c.http, apifetch.Request{
		URL:     c.cfg.BaseURL + "?" + q.Encode(),
		Headers: c.cfg.Headers,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrProvider, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Data) == 0 {
		return nil, ErrNotFound
	}

	f := resp.Data[0]
	return &Status{
		FlightIATA: f.Flight.IATA,
		Airline:    f.Airline.Name,
		Status:     mapStatus(f.FlightStatus, f.Departure.Delay),
		Departure:  mapStop(f.Departure),
		Arrival:    mapStop(f.Arrival),
	}, nil
}

// mapStatus folds the provider's status vocabulary into ours. A
// scheduled flight with a recorded departure delay is reported as
// delayed.
func mapStatus(providerStatus string, departureDelay int) string {
	switch providerStatus {
	case "scheduled":
		if departureDelay > 0 {
			return StatusDelayed
		}
		return StatusScheduled
	case "active":
		return StatusActive
	case "landed":
		return StatusLanded
	case "cancelled", "incident", "diverted":
		return StatusCancelled
	default:
		return StatusScheduled
	}
}

func expandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}

func mapStop(s providerStop) Stop {
	return Stop{
		Airport:   s.Airport,
		IATA:      s.IATA,
		Scheduled: s.Scheduled,
		Estimated: s.Estimated,
		DelayMin:  s.Delay,
	}
}
