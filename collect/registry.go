package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/evalgo/digestengine/model"
)

const registryBodyCap = 2500

// RegistryCollector checks a package registry for a newer published version
// of a tracked package. Unlike the code-hosting collectors, npm's and
// PyPI's registry APIs need no rate-limit bookkeeping for a single-package
// lookup, so this wraps a plain net/http.Client rather than httpclient.Client.
type RegistryCollector struct {
	http        *http.Client
	npmBaseURL  string
	pypiBaseURL string
}

const (
	defaultNPMBaseURL  = "https://registry.npmjs.org"
	defaultPyPIBaseURL = "https://pypi.org/pypi"
)

// NewRegistryCollector constructs a RegistryCollector with a bounded
// request timeout, pointed at the real npm and PyPI registries.
func NewRegistryCollector() *RegistryCollector {
	return &RegistryCollector{
		http:        &http.Client{Timeout: 15 * time.Second},
		npmBaseURL:  defaultNPMBaseURL,
		pypiBaseURL: defaultPyPIBaseURL,
	}
}

// Collect returns at most one Item when reg's latest published version was
// published within cutoff. Unrecognized ecosystems yield no items.
func (rc *RegistryCollector) Collect(ctx context.Context, reg model.RegistryRef, cutoff time.Time) ([]model.Item, error) {
	switch reg.Ecosystem {
	case "npm":
		return rc.collectNPM(ctx, reg, cutoff)
	case "pypi":
		return rc.collectPyPI(ctx, reg, cutoff)
	default:
		return nil, nil
	}
}

type npmPackage struct {
	DistTags struct {
		Latest string `json:"latest"`
	} `json:"dist-tags"`
	Time     map[string]string `json:"time"`
	Versions map[string]struct {
		Description string `json:"description"`
	} `json:"versions"`
}

func (rc *RegistryCollector) collectNPM(ctx context.Context, reg model.RegistryRef, cutoff time.Time) ([]model.Item, error) {
	url := fmt.Sprintf("%s/%s", rc.npmBaseURL, reg.PackageName)
	var pkg npmPackage
	if err := rc.fetchJSON(ctx, url, &pkg); err != nil {
		return nil, err
	}

	latest := pkg.DistTags.Latest
	if latest == "" {
		return nil, nil
	}
	publishedRaw, ok := pkg.Time[latest]
	if !ok {
		return nil, nil
	}
	publishedAt, err := time.Parse(time.RFC3339, publishedRaw)
	if err != nil || publishedAt.Before(cutoff) {
		return nil, nil
	}

	source := reg.DisplayName
	if source == "" {
		source = reg.PackageName
	}
	return []model.Item{{
		Title:       fmt.Sprintf("%s %s published", reg.PackageName, latest),
		URL:         fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", reg.PackageName, latest),
		PublishedAt: publishedAt,
		Body:        truncate(pkg.Versions[latest].Description, registryBodyCap),
		Source:      source,
	}}, nil
}

type pypiPackage struct {
	Info struct {
		Version string `json:"version"`
		Summary string `json:"summary"`
	} `json:"info"`
	Releases map[string][]struct {
		UploadTimeISO8601 string `json:"upload_time_iso_8601"`
	} `json:"releases"`
}

func (rc *RegistryCollector) collectPyPI(ctx context.Context, reg model.RegistryRef, cutoff time.Time) ([]model.Item, error) {
	url := fmt.Sprintf("%s/%s/json", rc.pypiBaseURL, reg.PackageName)
	var pkg pypiPackage
	if err := rc.fetchJSON(ctx, url, &pkg); err != nil {
		return nil, err
	}

	latest := pkg.Info.Version
	files, ok := pkg.Releases[latest]
	if !ok || len(files) == 0 {
		return nil, nil
	}
	publishedAt, err := time.Parse(time.RFC3339, files[0].UploadTimeISO8601)
	if err != nil || publishedAt.Before(cutoff) {
		return nil, nil
	}

	source := reg.DisplayName
	if source == "" {
		source = reg.PackageName
	}
	return []model.Item{{
		Title:       fmt.Sprintf("%s %s published", reg.PackageName, latest),
		URL:         fmt.Sprintf("https://pypi.org/project/%s/%s/", reg.PackageName, latest),
		PublishedAt: publishedAt,
		Body:        truncate(pkg.Info.Summary, registryBodyCap),
		Source:      source,
	}}, nil
}

func (rc *RegistryCollector) fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := rc.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry fetch %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
