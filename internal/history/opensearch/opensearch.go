package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/harness/internal/history"
)

// DefaultIndex receives events when the DSN names no index.
const DefaultIndex = "server-history"

// Sink indexes events as documents via the OpenSearch/Elasticsearch REST API:
// POST baseURL/index/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document flattens an event for indexing.
type document struct {
	Event      history.EventType `json:"event"`
	OccurredAt time.Time         `json:"occurred_at"`
	Name       string            `json:"name"`
	PID        int               `json:"pid"`
	Endpoint   string            `json:"endpoint"`
	Outcome    string            `json:"outcome"`
	Error      string            `json:"error,omitempty"`
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, err := json.Marshal(document{
		Event:      e.Type,
		OccurredAt: e.OccurredAt.UTC(),
		Name:       e.Record.Name,
		PID:        e.Record.PID,
		Endpoint:   e.Record.Endpoint,
		Outcome:    e.Record.Outcome,
		Error:      e.Record.Error,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
