// Package remoteok fetches postings from the public RemoteOK JSON feed.
package remoteok

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/ledger"
)

const (
	Source    = "remoteok"
	userAgent = "ai-job-aggregator/0.1 (+https://github.com/)"
	// The first element of the feed is a legal notice, not a posting.
	skipRows = 1
)

type Client struct {
	url        string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
}

var _ connector.Connector = (*Client)(nil)

func New(url string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
	}
}

// Factory registers the client under connector.Registry.
func Factory(settings *config.Settings, logger *zap.Logger) connector.Connector {
	return New(settings.RemoteOKURL, logger)
}

func (c *Client) Name() string {
	return Source
}

// Fetch downloads the whole feed before yielding, so a transport or format
// error is always the first and only value produced.
func (c *Client) Fetch(ctx context.Context) iter.Seq2[connector.Record, error] {
	return func(yield func(connector.Record, error) bool) {
		rows, err := c.getRows(ctx)
		if err != nil {
			yield(connector.Record{}, ledger.WithKind(err, ledger.KindFetch))
			return
		}

		c.logger.Debug("got response from RemoteOK", zap.Int("rows", len(rows)))

		for i, row := range rows {
			if i < skipRows {
				continue
			}
			rec, ok := parseRow(row)
			if !ok {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (c *Client) getRows(ctx context.Context) ([]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request RemoteOK")
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip body")
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf("bad status: %s", resp.Status)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, ledger.WithKind(errors.Wrap(err, "decode RemoteOK response"), ledger.KindEncoding)
	}

	rows, ok := payload.([]any)
	if !ok {
		return nil, errors.New("RemoteOK response is not a list")
	}
	return rows, nil
}

type row struct {
	Position *string `mapstructure:"position"`
	Company  *string `mapstructure:"company"`
	URL      *string `mapstructure:"url"`
}

// parseRow skips non-object rows and rows without an id.
func parseRow(v any) (connector.Record, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return connector.Record{}, false
	}
	id, present := obj["id"]
	if !present || id == nil {
		return connector.Record{}, false
	}

	rec := connector.Record{
		Source:       Source,
		SourceItemID: itemID(id),
		PublishedAt:  epoch(obj["epoch"]),
		Raw:          ledger.Document(obj),
	}

	var r row
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err == nil {
		err = dec.Decode(obj)
	}
	if err != nil {
		rec.Invalid = errors.Wrapf(err, "read RemoteOK row %s", rec.SourceItemID)
		return rec, true
	}

	rec.Title = r.Position
	rec.Company = r.Company
	rec.URL = r.URL
	return rec, true
}

func itemID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	default:
		b, err := json.Marshal(id)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// epoch converts a numeric unix timestamp to UTC. Anything else yields nil.
func epoch(v any) *time.Time {
	n, ok := v.(json.Number)
	if !ok {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec).UTC()
	return &t
}
