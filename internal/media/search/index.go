package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	Logger    zerolog.Logger
}

// Index keeps one document per ready record, keyed by media_uuid.
type Index struct {
	es     *elasticsearch.Client
	name   string
	logger zerolog.Logger
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "media_uuid":     {"type": "keyword"},
      "owner_identity": {"type": "keyword"},
      "title":          {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "media_kind":     {"type": "keyword"},
      "created_at":     {"type": "date"}
    }
  }
}`

func New(cfg Config) (*Index, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("search: no addresses configured")
	}
	if cfg.Index == "" {
		return nil, errors.New("search: index name is required")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}

	return &Index{
		es:     es,
		name:   cfg.Index,
		logger: cfg.Logger.With().Str("component", "search_index").Str("index", cfg.Index).Logger(),
	}, nil
}

func (i *Index) Name() string { return i.name }

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists([]string{i.name}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index: unexpected status %s", res.Status())
	}

	res, err = i.es.Indices.Create(
		i.name,
		i.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		i.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		// Another process may have created it first.
		if res.StatusCode == http.StatusBadRequest && bytes.Contains(readBody(res), []byte("resource_already_exists_exception")) {
			return nil
		}
		return responseError("create index", res)
	}

	i.logger.Info().Msg("index created")
	return nil
}

// Upsert writes doc under its media_uuid, replacing any previous version.
func (i *Index) Upsert(ctx context.Context, doc models.SearchDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := i.es.Index(
		i.name,
		bytes.NewReader(body),
		i.es.Index.WithDocumentID(doc.MediaUUID.String()),
		i.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.MediaUUID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index "+doc.MediaUUID.String(), res)
	}
	return nil
}

// UpdateTitle rewrites the title of the document matching both id and owner.
func (i *Index) UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error {
	body, err := json.Marshal(map[string]any{
		"query": ownedQuery(id, owner),
		"script": map[string]any{
			"lang":   "painless",
			"source": "ctx._source.title = params.title",
			"params": map[string]string{"title": title},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	res, err := i.es.UpdateByQuery(
		[]string{i.name},
		i.es.UpdateByQuery.WithBody(bytes.NewReader(body)),
		i.es.UpdateByQuery.WithConflicts("proceed"),
		i.es.UpdateByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("update title %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("update title "+id.String(), res)
	}
	return nil
}

// DeleteMedia removes the document matching both id and owner.
func (i *Index) DeleteMedia(ctx context.Context, id uuid.UUID, owner string) error {
	return i.deleteByQuery(ctx, "delete "+id.String(), map[string]any{"query": ownedQuery(id, owner)})
}

// DeleteByUUIDs removes every document whose media_uuid is in ids.
func (i *Index) DeleteByUUIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]string, len(ids))
	for n, id := range ids {
		values[n] = id.String()
	}
	return i.deleteByQuery(ctx, "delete orphans", map[string]any{
		"query": map[string]any{"terms": map[string]any{"media_uuid": values}},
	})
}

func (i *Index) deleteByQuery(ctx context.Context, op string, query map[string]any) error {
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", op, err)
	}

	res, err := i.es.DeleteByQuery(
		[]string{i.name},
		bytes.NewReader(body),
		i.es.DeleteByQuery.WithConflicts("proceed"),
		i.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(op, res)
	}
	return nil
}

// Page returns up to size documents ordered by media_uuid, starting after the
// given uuid. An empty after starts from the beginning.
func (i *Index) Page(ctx context.Context, after string, size int) ([]models.SearchDocument, error) {
	req := map[string]any{
		"size":    size,
		"query":   map[string]any{"match_all": map[string]any{}},
		"sort":    []any{map[string]string{"media_uuid": "asc"}},
		"_source": true,
	}
	if after != "" {
		req["search_after"] = []string{after}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	res, err := i.es.Search(
		i.es.Search.WithIndex(i.name),
		i.es.Search.WithBody(bytes.NewReader(body)),
		i.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var out struct {
		Hits struct {
			Hits []struct {
				Source models.SearchDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]models.SearchDocument, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}

func ownedQuery(id uuid.UUID, owner string) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"filter": []any{
				map[string]any{"term": map[string]string{"media_uuid": id.String()}},
				map[string]any{"term": map[string]string{"owner_identity": owner}},
			},
		},
	}
}

func readBody(res *esapi.Response) []byte {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return b
}

func responseError(op string, res *esapi.Response) error {
	return fmt.Errorf("%s: %s: %s", op, res.Status(), bytes.TrimSpace(readBody(res)))
}
