package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/hsmerge/internal/domain"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeHubSpot struct {
	mu       sync.Mutex
	requests []capturedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeHubSpot) {
	t.Helper()
	fake := &fakeHubSpot{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &req.Body)
			}
		}
		fake.mu.Lock()
		fake.requests = append(fake.requests, req)
		fake.mu.Unlock()
		fake.handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL, Token: "secret-token"})
	require.NoError(t, err)
	return client, fake
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Options{Token: "  "})
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{name: "found", status: http.StatusOK, body: `{"id":"101"}`, want: true},
		{name: "merged elsewhere", status: http.StatusOK, body: `{"id":"202"}`, want: false},
		{name: "not found", status: http.StatusNotFound, body: `{"status":"error"}`, want: false},
		{name: "server error", status: http.StatusServiceUnavailable, body: `down`, wantErr: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `bad token`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := client.Exists(context.Background(), "101")
			if tt.wantErr {
				var remote *domain.RemoteError
				require.True(t, errors.As(err, &remote), "expected RemoteError, got %v", err)
				assert.Equal(t, tt.status, remote.Status)
				assert.Equal(t, tt.body, remote.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, fake.requests, 1)
			assert.Equal(t, "/crm/v3/objects/companies/101", fake.requests[0].Path)
			assert.Equal(t, "Bearer secret-token", fake.requests[0].Auth)
		})
	}
}

func TestExists_TransportFailure(t *testing.T) {
	client, err := New(Options{BaseURL: "http://127.0.0.1:1", Token: "t"})
	require.NoError(t, err)

	_, err = client.Exists(context.Background(), "1")
	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, 0, remote.Status)
	assert.Error(t, remote.Unwrap())
}

func TestListAssociations(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "" {
			_, _ = w.Write([]byte(`{"results":[5,6],"hasMore":true,"offset":6}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[7],"hasMore":false,"offset":7}`))
	})

	ids, err := client.ListAssociations(context.Background(), "1", domain.ChildrenOf)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecordID{"5", "6", "7"}, ids)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, "/crm-associations/v1/associations/1/HUBSPOT_DEFINED/13", fake.requests[0].Path)
	assert.Equal(t, "limit=100", fake.requests[0].Query)
	assert.Equal(t, "limit=100&offset=6", fake.requests[1].Query)
}

func TestListAssociations_ParentsUseChildToParentCode(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[],"hasMore":false}`))
	})

	ids, err := client.ListAssociations(context.Background(), "1", domain.ParentsOf)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.Equal(t, "/crm-associations/v1/associations/1/HUBSPOT_DEFINED/14", fake.requests[0].Path)
}

func TestListAssociations_Error(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`slow down`))
	})

	_, err := client.ListAssociations(context.Background(), "1", domain.ChildrenOf)
	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusTooManyRequests, remote.Status)
}

func TestCreateAndDeleteAssociation(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.CreateAssociation(context.Background(), "5", "1", domain.ParentsOf))
	require.NoError(t, client.DeleteAssociation(context.Background(), "1", "9", domain.ParentsOf))

	require.Len(t, fake.requests, 2)
	create := fake.requests[0]
	assert.Equal(t, http.MethodPut, create.Method)
	assert.Equal(t, "/crm-associations/v1/associations", create.Path)
	assert.Equal(t, float64(5), create.Body["fromObjectId"])
	assert.Equal(t, float64(1), create.Body["toObjectId"])
	assert.Equal(t, "HUBSPOT_DEFINED", create.Body["category"])
	assert.Equal(t, float64(14), create.Body["definitionId"])

	del := fake.requests[1]
	assert.Equal(t, "/crm-associations/v1/associations/delete", del.Path)
	assert.Equal(t, float64(1), del.Body["fromObjectId"])
	assert.Equal(t, float64(9), del.Body["toObjectId"])
}

func TestCreateAssociation_RejectsNon204(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := client.CreateAssociation(context.Background(), "5", "1", domain.ParentsOf)
	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "create association", remote.Op)
	assert.Equal(t, domain.RecordID("5"), remote.FromID)
	assert.Equal(t, domain.RecordID("1"), remote.ToID)
}

func TestCreateAssociation_NonNumericID(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.CreateAssociation(context.Background(), "abc", "1", domain.ParentsOf)
	require.Error(t, err)
	assert.Empty(t, fake.requests)
}

func TestMerge(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})

	require.NoError(t, client.Merge(context.Background(), "2", "1"))
	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/crm/v3/objects/companies/merge", req.Path)
	assert.Equal(t, "1", req.Body["primaryObjectId"])
	assert.Equal(t, "2", req.Body["objectIdToMerge"])
}

func TestMerge_Failure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"cannot merge"}`))
	})

	err := client.Merge(context.Background(), "2", "1")
	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusBadRequest, remote.Status)
	assert.Contains(t, remote.Error(), "cannot merge")
}

func TestCustomAssociationCodes(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	client, err := New(Options{BaseURL: srv.URL, Token: "t", Codes: AssociationCodes{ParentToChild: 1, ChildToParent: 2}})
	require.NoError(t, err)

	_, err = client.ListAssociations(context.Background(), "1", domain.ParentsOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/crm-associations/v1/associations/1/HUBSPOT_DEFINED/2"}, paths)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; an odd prefix puts the cut inside one.
	body := "x" + strings.Repeat("é", maxErrorBody)
	got := truncate([]byte(body))

	require.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxErrorBody+len("..."))
	assert.Equal(t, maxErrorBody-1, len(strings.TrimSuffix(got, "...")))

	assert.Equal(t, "short", truncate([]byte("  short\n")))
}
