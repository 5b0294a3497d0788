// Package hubspot talks to the HubSpot CRM REST API for company existence,
// company associations and company merges.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/lherron/hsmerge/internal/domain"
)

const (
	DefaultBaseURL   = "https://api.hubapi.com"
	DefaultRateLimit = 9.0
	DefaultRateBurst = 1

	associationCategory = "HUBSPOT_DEFINED"
	associationPageSize = 100
	maxErrorBody        = 4096
)

// AssociationCodes maps association directions to HubSpot definition IDs.
type AssociationCodes struct {
	ParentToChild int `yaml:"parent_to_child"`
	ChildToParent int `yaml:"child_to_parent"`
}

// DefaultAssociationCodes returns the HubSpot-defined company codes.
func DefaultAssociationCodes() AssociationCodes {
	return AssociationCodes{ParentToChild: 13, ChildToParent: 14}
}

func (c AssociationCodes) code(dir domain.Direction) (int, error) {
	switch dir {
	case domain.ChildrenOf:
		return c.ParentToChild, nil
	case domain.ParentsOf:
		return c.ChildToParent, nil
	default:
		return 0, fmt.Errorf("unknown association direction %q", dir)
	}
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// RateLimit is the sustained request rate per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Codes     AssociationCodes
}

// Client implements the relationship store and merge executor used by the
// reconciliation engine. It never retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	codes   AssociationCodes
}

// New creates a client. The token is required.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("hubspot: access token is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	codes := opts.Codes
	if codes.ParentToChild == 0 || codes.ChildToParent == 0 {
		codes = DefaultAssociationCodes()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(opts.Token),
		http:    httpClient,
		limiter: limiter,
		codes:   codes,
	}, nil
}

type companyResponse struct {
	ID string `json:"id"`
}

// Exists reports whether the company is present. HubSpot answers a request for
// a merged-away ID with the surviving record, so a mismatched ID counts as
// absent.
func (c *Client) Exists(ctx context.Context, id domain.RecordID) (bool, error) {
	const op = "get company"
	status, body, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/companies/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return false, &domain.RemoteError{Op: op, FromID: id, Err: err}
	}
	switch status {
	case http.StatusOK:
		var company companyResponse
		if err := json.Unmarshal(body, &company); err != nil {
			return false, &domain.RemoteError{Op: op, FromID: id, Status: status, Err: fmt.Errorf("decode response: %w", err)}
		}
		return company.ID == string(id), nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &domain.RemoteError{Op: op, FromID: id, Status: status, Message: truncate(body)}
	}
}

type associationPage struct {
	Results []json.Number `json:"results"`
	HasMore bool          `json:"hasMore"`
	Offset  int           `json:"offset"`
}

// ListAssociations returns every associated company ID, following pagination.
func (c *Client) ListAssociations(ctx context.Context, id domain.RecordID, dir domain.Direction) ([]domain.RecordID, error) {
	op := "list " + string(dir) + " associations"
	code, err := c.codes.code(dir)
	if err != nil {
		return nil, &domain.RemoteError{Op: op, FromID: id, Err: err}
	}

	ids := []domain.RecordID{}
	offset := 0
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(associationPageSize))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
		path := fmt.Sprintf("/crm-associations/v1/associations/%s/%s/%d?%s",
			url.PathEscape(string(id)), associationCategory, code, q.Encode())

		status, body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, &domain.RemoteError{Op: op, FromID: id, Err: err}
		}
		if status != http.StatusOK {
			return nil, &domain.RemoteError{Op: op, FromID: id, Status: status, Message: truncate(body)}
		}

		var page associationPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &domain.RemoteError{Op: op, FromID: id, Status: status, Err: fmt.Errorf("decode response: %w", err)}
		}
		for _, n := range page.Results {
			ids = append(ids, domain.RecordID(n.String()))
		}
		if !page.HasMore || page.Offset <= offset {
			return ids, nil
		}
		offset = page.Offset
	}
}

type associationRequest struct {
	FromObjectID json.Number `json:"fromObjectId"`
	ToObjectID   json.Number `json:"toObjectId"`
	Category     string      `json:"category"`
	DefinitionID int         `json:"definitionId"`
}

// DeleteAssociation removes one association. HubSpot does not make this
// idempotent.
func (c *Client) DeleteAssociation(ctx context.Context, from, to domain.RecordID, dir domain.Direction) error {
	return c.putAssociation(ctx, "delete association", "/crm-associations/v1/associations/delete", from, to, dir)
}

// CreateAssociation adds one association.
func (c *Client) CreateAssociation(ctx context.Context, from, to domain.RecordID, dir domain.Direction) error {
	return c.putAssociation(ctx, "create association", "/crm-associations/v1/associations", from, to, dir)
}

func (c *Client) putAssociation(ctx context.Context, op, path string, from, to domain.RecordID, dir domain.Direction) error {
	code, err := c.codes.code(dir)
	if err != nil {
		return &domain.RemoteError{Op: op, FromID: from, ToID: to, Err: err}
	}
	fromID, err := objectID(from)
	if err != nil {
		return &domain.RemoteError{Op: op, FromID: from, ToID: to, Err: err}
	}
	toID, err := objectID(to)
	if err != nil {
		return &domain.RemoteError{Op: op, FromID: from, ToID: to, Err: err}
	}

	payload := associationRequest{
		FromObjectID: fromID,
		ToObjectID:   toID,
		Category:     associationCategory,
		DefinitionID: code,
	}
	status, body, err := c.do(ctx, http.MethodPut, path, payload)
	if err != nil {
		return &domain.RemoteError{Op: op, FromID: from, ToID: to, Err: err}
	}
	if status != http.StatusNoContent {
		return &domain.RemoteError{Op: op, FromID: from, ToID: to, Status: status, Message: truncate(body)}
	}
	return nil
}

type mergeRequest struct {
	PrimaryObjectID string `json:"primaryObjectId"`
	ObjectIDToMerge string `json:"objectIdToMerge"`
}

// Merge merges source into target. Target survives.
func (c *Client) Merge(ctx context.Context, source, target domain.RecordID) error {
	const op = "merge companies"
	payload := mergeRequest{
		PrimaryObjectID: string(target),
		ObjectIDToMerge: string(source),
	}
	status, body, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/companies/merge", payload)
	if err != nil {
		return &domain.RemoteError{Op: op, FromID: source, ToID: target, Err: err}
	}
	if status != http.StatusOK {
		return &domain.RemoteError{Op: op, FromID: source, ToID: target, Status: status, Message: truncate(body)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func objectID(id domain.RecordID) (json.Number, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err != nil {
		return "", fmt.Errorf("company id %q is not numeric", id)
	}
	return json.Number(id), nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	return s
}
