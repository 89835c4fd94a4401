package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// Client talks to an Apify-style scraping provider over its REST API.
// It implements monitor.ScrapeProvider and monitor.DatasetFetcher.
type Client struct {
	baseURL string
	token   string
	actorID string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a Client. timeout bounds each HTTP call.
func NewClient(baseURL, token, actorID string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		actorID: actorID,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type startRunRequest struct {
	ASINs    []string          `json:"asins"`
	Webhooks []webhookRegister `json:"webhooks"`
}

type webhookRegister struct {
	EventTypes []string `json:"eventTypes"`
	RequestURL string   `json:"requestUrl"`
}

type startRunResponse struct {
	Data struct {
		ID        string    `json:"id"`
		StartedAt time.Time `json:"startedAt"`
	} `json:"data"`
}

// StartBatch submits one asynchronous actor run for the given ASINs and
// registers the webhook that will signal completion. Provider overload
// and network failures surface as transient errors so callers can retry.
func (c *Client) StartBatch(ctx context.Context, asins []string, webhookURL string) (monitor.RunHandle, error) {
	if len(asins) == 0 {
		return monitor.RunHandle{}, monitor.Validationf("start batch: empty asin list")
	}

	body, err := json.Marshal(startRunRequest{
		ASINs: asins,
		Webhooks: []webhookRegister{{
			EventTypes: []string{"ACTOR.RUN.SUCCEEDED", "ACTOR.RUN.FAILED", "ACTOR.RUN.ABORTED", "ACTOR.RUN.TIMED_OUT"},
			RequestURL: webhookURL,
		}},
	})
	if err != nil {
		return monitor.RunHandle{}, eris.Wrap(err, "encode run request")
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s", c.baseURL, url.PathEscape(c.actorID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return monitor.RunHandle{}, eris.Wrap(err, "build run request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return monitor.RunHandle{}, monitor.Transient(eris.Wrap(err, "submit run"), 0)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return monitor.RunHandle{}, monitor.Transient(eris.Wrap(err, "read run response"), resp.StatusCode)
	}
	if err := checkStatus(resp.StatusCode, payload); err != nil {
		return monitor.RunHandle{}, eris.Wrap(err, "submit run")
	}

	var decoded startRunResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return monitor.RunHandle{}, eris.Wrap(err, "decode run response")
	}
	if decoded.Data.ID == "" {
		return monitor.RunHandle{}, eris.New("run response has no id")
	}

	c.logger.Info("scrape run submitted",
		zap.String("run_id", decoded.Data.ID),
		zap.Int("asin_count", len(asins)),
	)
	return monitor.RunHandle{RunID: decoded.Data.ID, StartedAt: decoded.Data.StartedAt}, nil
}

// FetchDataset retrieves and parses the items of a finished run's
// dataset. The raw payload is preserved for archival.
func (c *Client) FetchDataset(ctx context.Context, datasetID string) (monitor.Dataset, error) {
	endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s", c.baseURL, url.PathEscape(datasetID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return monitor.Dataset{}, eris.Wrap(err, "build dataset request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return monitor.Dataset{}, monitor.Transient(eris.Wrap(err, "fetch dataset"), 0)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return monitor.Dataset{}, monitor.Transient(eris.Wrap(err, "read dataset"), resp.StatusCode)
	}
	if err := checkStatus(resp.StatusCode, payload); err != nil {
		return monitor.Dataset{}, eris.Wrapf(err, "fetch dataset %s", datasetID)
	}

	items, err := ParseItems(payload)
	if err != nil {
		return monitor.Dataset{}, err
	}
	return monitor.Dataset{Items: items, Raw: payload}, nil
}

// checkStatus maps HTTP failures onto the error taxonomy: 429 and 5xx
// are transient, everything else non-2xx is permanent.
func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := eris.Errorf("provider returned %d: %s", code, truncate(body, 256))
	if code == http.StatusTooManyRequests || code >= 500 {
		return monitor.Transient(err, code)
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
