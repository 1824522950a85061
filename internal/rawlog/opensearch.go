package rawlog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Config holds OpenSearch connection configuration for the raw log.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

// OpenSearch implements Log on an OpenSearch cluster. Documents land in
// daily indices (<prefix>-YYYY.MM.DD); reads go through <prefix>-*.
type OpenSearch struct {
	client *opensearch.Client
	prefix string
}

func NewOpenSearch(cfg Config) (*OpenSearch, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "bridge-raw"
	}
	return &OpenSearch{client: client, prefix: prefix}, nil
}

func (o *OpenSearch) writeIndex(ts time.Time) string {
	return o.prefix + "-" + ts.UTC().Format("2006.01.02")
}

func (o *OpenSearch) Append(ctx context.Context, doc Doc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal raw doc: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: o.writeIndex(doc.TS),
		Body:  bytes.NewReader(data),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("index raw doc: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.IsError() {
		return fmt.Errorf("index raw doc: %s", res.Status())
	}
	return nil
}

func (o *OpenSearch) LastSeen(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	query := fmt.Sprintf(`{
		"size": 0,
		"query": {"range": {"ts": {"gte": %q}}},
		"aggs": {
			"devices": {
				"terms": {"field": "uuid.keyword", "size": 10000},
				"aggs": {"last_ts": {"max": {"field": "ts"}}}
			}
		}
	}`, since.UTC().Format(time.RFC3339))

	req := opensearchapi.SearchRequest{
		Index: []string{o.prefix + "-*"},
		Body:  strings.NewReader(query),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return nil, fmt.Errorf("search raw log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search raw log: %s", res.Status())
	}

	var parsed struct {
		Aggregations struct {
			Devices struct {
				Buckets []struct {
					Key    string `json:"key"`
					LastTS struct {
						Value *float64 `json:"value"`
					} `json:"last_ts"`
				} `json:"buckets"`
			} `json:"devices"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode raw log aggregation: %w", err)
	}

	out := make(map[string]time.Time)
	for _, bucket := range parsed.Aggregations.Devices.Buckets {
		if bucket.LastTS.Value == nil {
			continue
		}
		out[bucket.Key] = time.UnixMilli(int64(*bucket.LastTS.Value)).UTC()
	}
	return out, nil
}
