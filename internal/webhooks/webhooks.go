// Package webhooks notifies configured HTTP endpoints when a merge run ends.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/hsmerge/internal/domain"
)

const (
	defaultTimeout     = 2 * time.Second
	defaultConcurrency = 4
)

// Payload is the body posted for a finished run.
type Payload struct {
	RunUUID   string            `json:"run_uuid"`
	Mode      domain.RunMode    `json:"mode"`
	Status    domain.RunStatus  `json:"status"`
	InputPath string            `json:"input_path"`
	Groups    int               `json:"groups"`
	Merged    int               `json:"merged"`
	Missing   int               `json:"missing"`
	Error     *string           `json:"error"`
	Artifacts map[string]string `json:"artifacts"`
	StartedAt time.Time         `json:"started_at"`
	// FinishedAt is nil only if the run is still marked running.
	FinishedAt *time.Time `json:"finished_at"`
}

// NewPayload builds the payload for a run and its artifact paths.
func NewPayload(run *domain.Run, artifacts map[string]string) Payload {
	if artifacts == nil {
		artifacts = map[string]string{}
	}
	return Payload{
		RunUUID:    run.UUID,
		Mode:       run.Mode,
		Status:     run.Status,
		InputPath:  run.InputPath,
		Groups:     run.Groups,
		Merged:     run.Merged,
		Missing:    run.Missing,
		Error:      run.Error,
		Artifacts:  artifacts,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// Notifier posts run payloads to a fixed set of endpoints. Delivery is best
// effort: failures are logged and never returned.
type Notifier struct {
	urls   []string
	client *http.Client
	log    zerolog.Logger
}

// NewNotifier creates a notifier. A nil client uses a short timeout.
func NewNotifier(urls []string, client *http.Client, log zerolog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Notifier{urls: urls, client: client, log: log}
}

// Notify sends the payload to every resolved endpoint and waits for all of
// them.
func (n *Notifier) Notify(ctx context.Context, payload Payload) {
	targets := ResolveTargets(n.urls, payload, n.log)
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Msg("webhooks: failed to encode payload")
		return
	}

	workers := defaultConcurrency
	if len(targets) < workers {
		workers = len(targets)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				n.send(ctx, endpoint, body)
			}
		}()
	}

	for _, endpoint := range targets {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

// ResolveTargets templates, normalizes, and de-dupes webhook URLs.
// {run_id} and {status} are replaced from the payload.
func ResolveTargets(urls []string, payload Payload, log zerolog.Logger) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		templated := strings.TrimSpace(applyTemplate(strings.TrimSpace(raw), payload))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !isValidWebhookURL(templated) {
			log.Warn().Str("url", templated).Msg("webhooks: skipping invalid url")
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

// ParseURLs splits a comma or whitespace separated list.
func ParseURLs(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

func applyTemplate(raw string, payload Payload) string {
	result := strings.ReplaceAll(raw, "{run_id}", payload.RunUUID)
	result = strings.ReplaceAll(result, "{status}", string(payload.Status))
	return result
}

func isValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	return true
}

func (n *Notifier) send(ctx context.Context, endpoint string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		n.log.Warn().Err(err).Str("url", endpoint).Msg("webhooks: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Str("url", endpoint).Msg("webhooks: request failed")
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn().Int("status", resp.StatusCode).Str("url", endpoint).Msg("webhooks: endpoint rejected notification")
		return
	}
	n.log.Debug().Str("url", endpoint).Msg("webhooks: notification delivered")
}
