// internal/store/elastic.go
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	json "github.com/goccy/go-json"

	"logship/internal/model"
)

// Elastic 은 go-elasticsearch client 위에 Store 를 구현한다.
// client 자체의 retry 는 끈다. retry 정책은 호출자(indexer: 없음, sweeper: 고정 backoff)가 결정한다.
type Elastic struct {
	client *elasticsearch.Client
}

var _ Store = (*Elastic)(nil)

// NewElastic 은 address("http://host:9200") 로 client 를 만든다.
func NewElastic(address string) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{address},
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Elastic{client: client}, nil
}

func (e *Elastic) Info(ctx context.Context) (Info, error) {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return Info{}, err
	}
	var body struct {
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := decode(res, &body); err != nil {
		return Info{}, err
	}
	return Info{ClusterName: body.ClusterName, Version: body.Version.Number}, nil
}

// GetMapping 응답은 {"<concrete index>":{"mappings":{"properties":{...}}}} 형태이며
// alias 로 조회하면 key 가 실제 index 이름이 되므로 첫 entry 를 사용한다.
func (e *Elastic) GetMapping(ctx context.Context, index string) ([]string, bool, error) {
	res, err := e.client.Indices.GetMapping(
		e.client.Indices.GetMapping.WithContext(ctx),
		e.client.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return nil, false, err
	}
	if res.StatusCode == http.StatusNotFound {
		drain(res)
		return nil, false, nil
	}

	var body map[string]struct {
		Mappings struct {
			Properties map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	if err := decode(res, &body); err != nil {
		return nil, false, err
	}

	for _, idx := range body {
		if idx.Mappings.Properties == nil {
			return nil, false, nil
		}
		fields := make([]string, 0, len(idx.Mappings.Properties))
		for name := range idx.Mappings.Properties {
			fields = append(fields, name)
		}
		return fields, true, nil
	}
	return nil, false, nil
}

func (e *Elastic) CreateIndex(ctx context.Context, index string, body []byte) error {
	res, err := e.client.Indices.Create(
		index,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return err
	}
	return decode(res, nil)
}

func (e *Elastic) Count(ctx context.Context, index string, before uint32) (int64, error) {
	q, err := json.Marshal(map[string]any{"query": rangeBefore(before)})
	if err != nil {
		return 0, err
	}
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(index),
		e.client.Count.WithBody(bytes.NewReader(q)),
	)
	if err != nil {
		return 0, err
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := decode(res, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

func (e *Elastic) Bulk(ctx context.Context, index string, body []byte) ([]BulkItem, error) {
	res, err := e.client.Bulk(
		bytes.NewReader(body),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return nil, err
	}

	var out struct {
		Items []map[string]struct {
			ID     string `json:"_id"`
			Result string `json:"result"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := decode(res, &out); err != nil {
		return nil, err
	}

	items := make([]BulkItem, 0, len(out.Items))
	for _, it := range out.Items {
		// action 이름("index")이 key 인 단일 entry
		for _, r := range it {
			item := BulkItem{ID: r.ID, Result: r.Result, Status: r.Status}
			if r.Error != nil {
				item.Error = r.Error.Type + ": " + r.Error.Reason
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (e *Elastic) Search(ctx context.Context, index string, from, before uint32, size int) ([]Hit, error) {
	q, err := json.Marshal(map[string]any{
		"size": size,
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"gte": from, "lt": before},
			},
		},
		"sort": []any{map[string]any{"timestamp": "asc"}, map[string]any{"_doc": "asc"}},
	})
	if err != nil {
		return nil, err
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(q)),
	)
	if err != nil {
		return nil, err
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source model.LogEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decode(res, &out); err != nil {
		return nil, err
	}

	hits := make([]Hit, len(out.Hits.Hits))
	for i, h := range out.Hits.Hits {
		hits[i] = Hit{ID: h.ID, Event: h.Source}
	}
	return hits, nil
}

func (e *Elastic) DeleteByQuery(ctx context.Context, index string, before uint32) (int64, error) {
	q, err := json.Marshal(map[string]any{"query": rangeBefore(before)})
	if err != nil {
		return 0, err
	}
	res, err := e.client.DeleteByQuery(
		[]string{index},
		bytes.NewReader(q),
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return 0, err
	}
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	if err := decode(res, &body); err != nil {
		return 0, err
	}
	return body.Deleted, nil
}

func rangeBefore(before uint32) map[string]any {
	return map[string]any{
		"range": map[string]any{
			"timestamp": map[string]any{"lt": before},
		},
	}
}

// decode 는 응답 바디를 닫고, non-2xx 면 ErrStatus 로 감싼 error 를 반환한다.
// v 가 nil 이면 바디는 버린다.
func decode(res *esapi.Response, v any) error {
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("%w: %s %s", ErrStatus, res.Status(), bytes.TrimSpace(msg))
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func drain(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
