// Package moviedb provides a client for the movie-metadata lookup service.
package moviedb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cinechat/cinechat/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Movie is one title as the lookup service reports it.
type Movie struct {
	MovieID     int     `json:"movie_id,omitempty"`
	MovieName   string  `json:"movie_name"`
	Popularity  float64 `json:"popularity"`
	ReleaseDate string  `json:"release_date,omitempty"`
	PosterPath  string  `json:"poster_path,omitempty"`
	Overview    string  `json:"overview,omitempty"`
}

// SearchResult is one page of search hits plus pagination facts.
//
// The upstream service spells the index field "curent_index" on the wire;
// the misspelling is preserved so merged payloads stay byte-compatible with
// what existing clients parse.
type SearchResult struct {
	CurrentIndex int     `json:"curent_index"`
	TotalPages   int     `json:"total_pages"`
	TotalMovies  int     `json:"total_movies"`
	Movies       []Movie `json:"movies"`
}

// Client is a movie lookup API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a movie lookup client.
func NewClient(baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// SearchMovies runs a search with the given parameters. Parameters are
// forwarded verbatim as query values; the service interprets page tokens like
// "new" and "repeat" itself.
func (c *Client) SearchMovies(ctx context.Context, params map[string]any) (*SearchResult, error) {
	var result SearchResult
	if err := c.getJSON(ctx, "/api/movies/search", encodeParams(params), &result); err != nil {
		return nil, fmt.Errorf("moviedb: search failed: %w", err)
	}

	c.logger.Debug("movie search completed",
		"total_movies", result.TotalMovies,
		"total_pages", result.TotalPages,
		"current_index", result.CurrentIndex,
	)
	return &result, nil
}

// GetMovieInformation fetches detail for a single title.
func (c *Client) GetMovieInformation(ctx context.Context, query map[string]string) (*Movie, error) {
	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}

	var movie Movie
	if err := c.getJSON(ctx, "/api/movies/info", values, &movie); err != nil {
		return nil, fmt.Errorf("moviedb: movie lookup failed: %w", err)
	}
	return &movie, nil
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func encodeParams(params map[string]any) url.Values {
	values := url.Values{}
	for k, v := range params {
		switch t := v.(type) {
		case string:
			values.Set(k, t)
		case float64:
			// JSON numbers decode as float64; render whole numbers without a
			// fractional part so page=1 stays "1".
			if t == float64(int64(t)) {
				values.Set(k, fmt.Sprintf("%d", int64(t)))
			} else {
				values.Set(k, fmt.Sprintf("%g", t))
			}
		default:
			values.Set(k, fmt.Sprintf("%v", v))
		}
	}
	return values
}
