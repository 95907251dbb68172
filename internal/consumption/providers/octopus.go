package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
)

const octopusSource = "octopus"

// OctopusConfig identifies the account and meter to read.
type OctopusConfig struct {
	BaseURL string
	APIKey  string
	MPAN    string
	Serial  string
}

// OctopusProvider implements consumption.Source for the Octopus Energy REST API.
type OctopusProvider struct {
	name     string
	apiKey   string
	endpoint string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewOctopusProvider(client *http.Client, cfg OctopusConfig) *OctopusProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "octopus",
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	// remove trailing / from the API host
	base := strings.TrimRight(cfg.BaseURL, "/")
	endpoint := fmt.Sprintf("%s/v1/electricity-meter-points/%s/meters/%s/consumption/",
		base, url.PathEscape(cfg.MPAN), url.PathEscape(cfg.Serial))

	return &OctopusProvider{
		name:     octopusSource,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		httpCfg: HTTPClientConfig{
			Client: client,
		},
		circuit: cb,
	}
}

func (p *OctopusProvider) Name() string {
	return p.name
}

// Fetch requests one page of half-hour readings starting within [from, to).
func (p *OctopusProvider) Fetch(ctx context.Context, from, to time.Time, pageSize int) ([]consumption.Reading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: octopus api key is not configured", consumption.ErrConfiguration)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("period_from", consumption.FormatWire(from))
		values.Set("period_to", consumption.FormatWire(to))
		values.Set("order_by", "period")
		values.Set("page_size", strconv.Itoa(pageSize))

		u := fmt.Sprintf("%s?%s", p.endpoint, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		// The API key is the basic auth user name; the password stays empty.
		req.SetBasicAuth(p.apiKey, "")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	body, err := doRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}

	return decodeConsumption(body)
}

// decodeConsumption validates the payload shape once and converts it to readings.
func decodeConsumption(body []byte) ([]consumption.Reading, error) {
	var payload struct {
		Results *[]struct {
			IntervalStart *string  `json:"interval_start"`
			IntervalEnd   *string  `json:"interval_end"`
			Consumption   *float64 `json:"consumption"`
		} `json:"results"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &consumption.ParseError{Source: octopusSource, Err: err}
	}
	if payload.Results == nil {
		return nil, &consumption.ParseError{Source: octopusSource, Err: errors.New("missing results")}
	}

	results := *payload.Results
	readings := make([]consumption.Reading, 0, len(results))
	for i, rec := range results {
		if rec.IntervalStart == nil || rec.IntervalEnd == nil || rec.Consumption == nil {
			return nil, &consumption.ParseError{
				Source: octopusSource,
				Err:    fmt.Errorf("result %d: missing interval_start, interval_end or consumption", i),
			}
		}

		start, err := consumption.ParseTimestamp(*rec.IntervalStart)
		if err != nil {
			return nil, &consumption.ParseError{Source: octopusSource, Err: fmt.Errorf("result %d: %w", i, err)}
		}
		end, err := consumption.ParseTimestamp(*rec.IntervalEnd)
		if err != nil {
			return nil, &consumption.ParseError{Source: octopusSource, Err: fmt.Errorf("result %d: %w", i, err)}
		}
		if !start.Before(end) {
			return nil, &consumption.ParseError{
				Source: octopusSource,
				Err:    fmt.Errorf("result %d: interval start %s is not before end %s", i, *rec.IntervalStart, *rec.IntervalEnd),
			}
		}

		readings = append(readings, consumption.Reading{
			Start:       start,
			End:         end,
			Consumption: *rec.Consumption,
		})
	}

	return readings, nil
}
