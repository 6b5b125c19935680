package senec

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

type Options struct {
	IPAddress   string
	UseHTTPS    bool
	InsecureTLS bool
	Timeout     time.Duration
}

// Client reads the local lala.cgi endpoint of a Senec storage system.
type Client struct {
	name       string
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// query names every section and key a cycle needs. The device answers with the
// same shape, empty strings replaced by typed values.
var query = map[string]map[string]string{
	domain.SectionEnergy: {
		domain.KeyBatPower:      "",
		domain.KeyBatSoC:        "",
		domain.KeyInverterPower: "",
	},
	domain.SectionCounter: {
		domain.KeyCounterPower:     "",
		domain.KeyCounterFrequency: "",
		domain.KeyCounterCurrents:  "",
		domain.KeyCounterVoltages:  "",
		domain.KeyCounterPowers:    "",
	},
}

// NewClient performs no I/O.
func NewClient(name string, opts Options, logger *zap.Logger) (*Client, error) {
	if opts.IPAddress == "" {
		return nil, errors.New("senec: ip_address is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	scheme := "http"
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.UseHTTPS {
		scheme = "https"
		// SENEC units ship a self-signed certificate
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureTLS}
	}
	return &Client{
		name:       name,
		url:        fmt.Sprintf("%s://%s/lala.cgi", scheme, opts.IPAddress),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger.With(zap.String("device", name)),
	}, nil
}

// Factory defers client construction to the first update cycle.
func Factory(name string, opts Options, logger *zap.Logger) port.DeviceClientFactory {
	return func() (port.DeviceClient, error) {
		return NewClient(name, opts, logger)
	}
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) GetValues(ctx context.Context) (domain.RawReading, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("senec: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, c.unavailable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.unavailable(fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}

	var payload map[string]map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.MalformedReadingError{Path: "/", Reason: fmt.Sprintf("decode response: %v", err)}
	}
	reading, dropped := decodeReading(payload)
	for _, d := range dropped {
		c.logger.Warn("senec: dropping undecodable value", zap.String("path", d.Path), zap.String("reason", d.Reason))
	}
	return reading, nil
}

func (c *Client) unavailable(err error) error {
	return &domain.DeviceUnavailableError{Device: c.name, Err: err}
}

// decodeReading decodes every section. Values that fail to decode are left out
// of the reading and reported back.
func decodeReading(payload map[string]map[string]json.RawMessage) (domain.RawReading, []*domain.MalformedReadingError) {
	var dropped []*domain.MalformedReadingError
	reading := make(domain.RawReading, len(payload))
	for section, values := range payload {
		out := make(map[string]any, len(values))
		for key, raw := range values {
			v, err := decodeField(raw)
			if err != nil {
				dropped = append(dropped, &domain.MalformedReadingError{
					Path:   domain.PathString(section, key),
					Reason: err.Error(),
				})
				continue
			}
			out[key] = v
		}
		reading[section] = out
	}
	return reading, dropped
}

// decodeField accepts a single typed string or an array of them.
func decodeField(raw json.RawMessage) (any, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return decodeValue(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("expected string or string array: %w", err)
	}
	out := make([]any, len(many))
	for i, s := range many {
		v, err := decodeValue(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ensure interface compliance
var _ port.DeviceClient = (*Client)(nil)
