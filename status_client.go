package gpionet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const statusClientTimeout = 2 * time.Second

// StatusClient reads a daemon's status endpoint. It never touches the
// protocol port, so it works while another client holds the connection.
type StatusClient struct {
	BaseURL string

	httpClient *http.Client
}

func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: statusClientTimeout},
	}
}

func (sc *StatusClient) get(ctx context.Context, path string, v interface{}) error {
	reqUrl, err := url.Parse(sc.BaseURL)
	if err != nil {
		return errors.Wrap(err, "failed to parse status url")
	}
	reqUrl, err = reqUrl.Parse(path)
	if err != nil {
		return errors.Wrapf(err, "error parsing url (%s)", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqUrl.String(), nil)
	if err != nil {
		return errors.Wrap(err, "error preparing request")
	}

	response, err := sc.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "status request to %s failed", reqUrl)
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("status request to %s failed (response code: %d)", reqUrl, response.StatusCode)
	}
	err = json.NewDecoder(response.Body).Decode(v)
	if err != nil {
		return errors.Wrap(err, "decoding status response failed")
	}
	return nil
}

func (sc *StatusClient) Info(ctx context.Context) (DaemonInfo, error) {
	info := DaemonInfo{}
	err := sc.get(ctx, "/info", &info)
	return info, err
}

// Pins returns every pin the daemon has seen, ordered by id.
func (sc *StatusClient) Pins(ctx context.Context) ([]PinState, error) {
	pins := []PinState{}
	err := sc.get(ctx, "/pins", &pins)
	return pins, err
}
