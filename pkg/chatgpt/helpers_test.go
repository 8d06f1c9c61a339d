package chatgpt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/regpt/pkg/arkose"
	"github.com/go-go-golems/regpt/pkg/settings"
	"github.com/stretchr/testify/require"
)

// backend is a fake conversation server. Every POST to the conversation
// endpoint is answered with the next entry of responses.
type backend struct {
	t   *testing.T
	srv *httptest.Server
	mux *http.ServeMux

	mu        sync.Mutex
	responses []string
	payloads  []map[string]interface{}
	headers   []http.Header
	gets      []string
	patches   []string
}

func newBackend(t *testing.T, responses ...string) *backend {
	t.Helper()
	b := &backend{t: t, mux: http.NewServeMux(), responses: responses}
	b.mux.HandleFunc("/backend-api/conversation", b.handlePost)
	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload map[string]interface{}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	n := len(b.payloads)
	b.payloads = append(b.payloads, payload)
	b.headers = append(b.headers, r.Header.Clone())
	response := ""
	if n < len(b.responses) {
		response = b.responses[n]
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = io.WriteString(w, response)
}

// conversation serves GET and PATCH for single conversations.
func (b *backend) conversation(get func(id string) string) {
	b.mux.HandleFunc("/backend-api/conversation/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/backend-api/conversation/")
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			b.gets = append(b.gets, id)
			_, _ = io.WriteString(w, get(id))
		case http.MethodPatch:
			body, _ := io.ReadAll(r.Body)
			b.patches = append(b.patches, id+" "+string(body))
			_, _ = io.WriteString(w, `{"success": true}`)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (b *backend) posts() []map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]interface{}{}, b.payloads...)
}

func (b *backend) header(i int) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[i]
}

func (b *backend) patchList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.patches...)
}

func (b *backend) settings() *settings.Settings {
	s := settings.Default()
	s.Endpoints.BaseURL = b.srv.URL
	s.AllowInsecureEndpoints = true
	s.ChatRequirements = false
	return s
}

func (b *backend) client(options ...Option) *Client {
	options = append([]Option{
		WithSettings(b.settings()),
		WithHTTPClient(b.srv.Client()),
		WithAuthToken("test-access-token"),
		WithTokenProvider(arkose.TokenProviderFunc(func(context.Context) (string, error) {
			return "arkose-test-token", nil
		})),
	}, options...)
	c := NewClient(options...)
	require.NoError(b.t, c.Open(context.Background()))
	return c
}

type sseEvent struct {
	content string
	id      string
	parent  string
	conv    string
	cutOff  bool
}

func (e sseEvent) String() string {
	finish := `{"type": "stop"}`
	if e.cutOff {
		finish = `{"type": "max_tokens"}`
	}
	return fmt.Sprintf(
		`data: {"message": {"id": %q, "author": {"role": "assistant"}, "content": {"content_type": "text", "parts": [%q]}, "metadata": {"parent_id": %q, "finish_details": %s}}, "conversation_id": %q, "error": null}`+"\n\n",
		e.id, e.content, e.parent, finish, e.conv,
	)
}

// sse renders cumulative updates of one assistant message followed by the
// end marker. The last update carries cutOff.
func sse(conv, id, parent string, cutOff bool, contents ...string) string {
	var sb strings.Builder
	sb.WriteString(`data: {"message": {"id": "user-1", "author": {"role": "user"}, "content": {"parts": ["echo"]}, "metadata": {}}, "conversation_id": "` + conv + `"}` + "\n\n")
	for i, c := range contents {
		sb.WriteString(sseEvent{
			content: c,
			id:      id,
			parent:  parent,
			conv:    conv,
			cutOff:  cutOff && i == len(contents)-1,
		}.String())
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func drain(t *testing.T, s *PromptStream) []string {
	t.Helper()
	var got []string
	for s.Next() {
		got = append(got, s.Current().Content)
	}
	return got
}
