package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
)

const advisoryBodyCap = 4000

type advisoryPayload struct {
	GHSAID      string    `json:"ghsa_id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// AdvisoryCollector polls a code-hosting security advisory database for
// ecosystem-wide advisories, reusing the same rate-limit-aware client the
// release and issue collectors use against the advisory listing endpoint.
type AdvisoryCollector struct {
	http *httpclient.Client
}

// NewAdvisoryCollector constructs an AdvisoryCollector over an
// httpclient.Client pointed at the platform's advisory API.
func NewAdvisoryCollector(h *httpclient.Client) *AdvisoryCollector {
	return &AdvisoryCollector{http: h}
}

// Collect returns advisories for advisory.Ecosystem published within cutoff.
func (ac *AdvisoryCollector) Collect(ctx context.Context, advisory model.AdvisoryRef, cutoff time.Time) ([]model.Item, error) {
	q := url.Values{"ecosystem": {advisory.Ecosystem}}
	rows, err := ac.http.GetPage(ctx, "/advisories", q, 30)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	source := advisory.DisplayName
	if source == "" {
		source = advisory.Ecosystem
	}

	var items []model.Item
	for _, row := range rows {
		payload, err := decodeAdvisory(row)
		if err != nil {
			continue
		}
		if payload.PublishedAt.Before(cutoff) {
			continue
		}
		items = append(items, model.Item{
			Title:       fmt.Sprintf("[Advisory] %s", payload.Summary),
			URL:         payload.HTMLURL,
			PublishedAt: payload.PublishedAt,
			Body:        truncate(fmt.Sprintf("Severity: %s\n\n%s", payload.Severity, payload.Description), advisoryBodyCap),
			Source:      source,
		})
	}
	return items, nil
}

func decodeAdvisory(raw interface{}) (advisoryPayload, error) {
	var payload advisoryPayload
	buf, err := json.Marshal(raw)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
