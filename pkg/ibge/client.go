// Package ibge is a client for the IBGE localities and aggregates APIs.
package ibge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://servicodados.ibge.gov.br/api"

// Population estimates: aggregate 6579, variable 9324, latest period.
const (
	populationAggregate = "6579"
	populationVariable  = "9324"
)

// Client reads municipalities and population estimates per state.
type Client interface {
	Municipalities(ctx context.Context, uf string) ([]Municipality, error)
	Populations(ctx context.Context, uf string) (map[int64]int64, error)
}

// Municipality is a locality as listed by the localities API.
type Municipality struct {
	ID   int64  `json:"id"`
	Name string `json:"nome"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ibge: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an IBGE client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Municipalities(ctx context.Context, uf string) ([]Municipality, error) {
	endpoint := fmt.Sprintf("%s/v1/localidades/estados/%s/municipios", c.baseURL, url.PathEscape(uf))

	var out []Municipality
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, eris.Wrapf(err, "ibge: municipalities %s", uf)
	}
	return out, nil
}

type aggregateResponse []struct {
	Results []struct {
		Series []struct {
			Locality struct {
				ID string `json:"id"`
			} `json:"localidade"`
			Values map[string]string `json:"serie"`
		} `json:"series"`
	} `json:"resultados"`
}

// Populations returns the latest population estimate per municipality id.
// Series values that are not numeric (the API uses "-" and "..." for missing
// data) are skipped.
func (c *httpClient) Populations(ctx context.Context, uf string) (map[int64]int64, error) {
	endpoint := fmt.Sprintf("%s/v3/agregados/%s/periodos/-1/variaveis/%s?localidades=%s",
		c.baseURL, populationAggregate, populationVariable, url.QueryEscape("N6[N3["+uf+"]]"))

	var resp aggregateResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, eris.Wrapf(err, "ibge: populations %s", uf)
	}
	if len(resp) == 0 || len(resp[0].Results) == 0 {
		return nil, eris.Errorf("ibge: populations %s: empty aggregate", uf)
	}

	out := make(map[int64]int64, len(resp[0].Results[0].Series))
	for _, s := range resp[0].Results[0].Series {
		id, err := strconv.ParseInt(s.Locality.ID, 10, 64)
		if err != nil {
			continue
		}
		for _, v := range s.Values {
			if pop, err := strconv.ParseInt(v, 10, 64); err == nil {
				out[id] = pop
			}
		}
	}
	return out, nil
}

func (c *httpClient) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eris.Wrap(err, "ibge: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "ibge: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return eris.Wrap(err, "ibge: decode response")
	}
	return nil
}
