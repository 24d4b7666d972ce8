package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/models"
	"github.com/lipolab/postboard/utils"
)

const requestTimeout = 5 * time.Second

// indexMapping is applied when the index does not exist yet.
const indexMapping = `{
  "mappings": {
    "properties": {
      "title": {"type": "text", "analyzer": "standard"},
      "content": {"type": "text", "analyzer": "standard"},
      "department": {"type": "keyword"},
      "author": {"type": "keyword"},
      "category": {"type": "keyword"},
      "postDate": {"type": "date"},
      "endDate": {"type": "date"},
      "badges": {"type": "keyword"},
      "views": {"type": "integer"}
    }
  }
}`

// ElasticOptions describes the Elasticsearch endpoint.
type ElasticOptions struct {
	URL      string
	Index    string
	Username string
	Password string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// ElasticSink is a Sink backed by an Elasticsearch index.
type ElasticSink struct {
	es     *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewElasticSink pings the cluster and creates the index if needed.
// Any failure yields the disabled sink.
func NewElasticSink(ctx context.Context, opts ElasticOptions, logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ElasticSink")
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{opts.URL},
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: opts.Transport,
	})
	if err != nil {
		utils.ReportFailure(logger, utils.FailureDegraded, "elasticsearch client init failed", zap.Error(err))
		return Disabled()
	}
	s := &ElasticSink{es: es, index: opts.Index, logger: logger}
	if err := s.ping(ctx); err != nil {
		utils.ReportFailure(logger, utils.FailureDegraded, "elasticsearch connection failed", zap.String("url", opts.URL), zap.Error(err))
		return Disabled()
	}
	if err := s.ensureIndex(ctx); err != nil {
		// Indexing still works with dynamic mappings.
		utils.ReportFailure(logger, utils.FailureDegraded, "elasticsearch index creation failed", zap.String("index", opts.Index), zap.Error(err))
	}
	return s
}

func (s *ElasticSink) Available() bool { return true }

func (s *ElasticSink) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}

func (s *ElasticSink) ensureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	res, err = s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return responseError("create index", res)
}

// Index stores post under its own identifier.
func (s *ElasticSink) Index(ctx context.Context, post *models.Post) error {
	body, err := json.Marshal(post)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.es.Index(s.index, bytes.NewReader(body),
		s.es.Index.WithDocumentID(post.ID),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return responseError("index", res)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Post `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query runs a multi-field match with the title boosted.
func (s *ElasticSink) Query(ctx context.Context, q string) ([]models.Post, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"title^2", "content", "department", "author"},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if err := responseError("search", res); err != nil {
		return nil, err
	}
	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	posts := make([]models.Post, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		posts = append(posts, h.Source)
	}
	return posts, nil
}

func responseError(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("%s: %s %s", op, res.Status(), strings.TrimSpace(string(b)))
}
