package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeCRM is an in-memory HubSpot serving the endpoints the client uses.
// Links are stored child -> parent.
type fakeCRM struct {
	mu        sync.Mutex
	companies map[string]bool
	links     map[[2]string]bool
	merges    [][2]string
	failMerge bool
	// broken ids answer lookups with a server error.
	broken map[string]bool
}

func newFakeCRM(t *testing.T, companies ...string) (*fakeCRM, string) {
	t.Helper()
	f := &fakeCRM{companies: map[string]bool{}, links: map[[2]string]bool{}, broken: map[string]bool{}}
	for _, id := range companies {
		f.companies[id] = true
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeCRM) link(child, parent string) {
	f.links[[2]string{child, parent}] = true
}

// Links returns every association as "child->parent", sorted.
func (f *fakeCRM) Links() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for l := range f.links {
		out = append(out, l[0]+"->"+l[1])
	}
	sort.Strings(out)
	return out
}

func (f *fakeCRM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/crm/v3/objects/companies/merge":
		var req struct {
			PrimaryObjectID string `json:"primaryObjectId"`
			ObjectIDToMerge string `json:"objectIdToMerge"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.failMerge {
			http.Error(w, `{"message":"merge rejected"}`, http.StatusBadRequest)
			return
		}
		delete(f.companies, req.ObjectIDToMerge)
		f.merges = append(f.merges, [2]string{req.ObjectIDToMerge, req.PrimaryObjectID})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"` + req.PrimaryObjectID + `"}`))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/crm/v3/objects/companies/"):
		id := strings.TrimPrefix(path, "/crm/v3/objects/companies/")
		if f.broken[id] {
			http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
			return
		}
		if !f.companies[id] {
			http.Error(w, `{"status":"error"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/crm-associations/v1/associations/"):
		// /crm-associations/v1/associations/{id}/HUBSPOT_DEFINED/{code}
		parts := strings.Split(strings.TrimPrefix(path, "/crm-associations/v1/associations/"), "/")
		if len(parts) != 3 {
			http.NotFound(w, r)
			return
		}
		id, code := parts[0], parts[2]
		results := []json.Number{}
		for l := range f.links {
			switch {
			case code == "13" && l[1] == id:
				results = append(results, json.Number(l[0]))
			case code == "14" && l[0] == id:
				results = append(results, json.Number(l[1]))
			}
		}
		sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "hasMore": false, "offset": 0})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/crm-associations/v1/associations"):
		var req struct {
			From         json.Number `json:"fromObjectId"`
			To           json.Number `json:"toObjectId"`
			DefinitionID int         `json:"definitionId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		key := [2]string{req.From.String(), req.To.String()}
		if req.DefinitionID == 13 {
			key = [2]string{req.To.String(), req.From.String()}
		}
		if path == "/crm-associations/v1/associations/delete" {
			delete(f.links, key)
		} else {
			f.links[key] = true
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}
