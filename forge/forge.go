// Package forge maps the code-hosting JSON API shapes (releases, tags,
// commit compare, issues, comments, PR files, repo file contents) onto typed
// Go values, caching every fetch except the FetchIssuesSince listing through
// a shared RunCache so the same (owner, repo, resource) is never requested
// twice within a run. It is new
// code grounded on the GitHub REST response shapes consumed by the client
// wrapper in other_examples/aa221b24_mikematt33-gh-inspect, adapted from a
// generated SDK client onto the project's own httpclient.Client so the
// rate-limit retry and caching policy are uniform across every endpoint.
package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/evalgo/digestengine/cache"
	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
)

// Release is one entry from the releases listing endpoint.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Tag is one entry from the tags listing endpoint.
type Tag struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// IssueMeta is the normalized shape of an issue or pull request, since both
// resources share most fields in the upstream API and the extractor treats
// "is this a PR" as a boolean flag on an issue-shaped payload.
type IssueMeta struct {
	Number         int
	Title          string
	Body           string
	State          string
	IsPullRequest  bool
	Labels         []string
	CommentsCount  int
	ReactionsTotal int
	UpdatedAt      time.Time
	CreatedAt      time.Time
	HTMLURL        string
	BaseRef        string
	HeadRef        string
	CommitsCount   int
	Additions      int
	Deletions      int
	ChangedFiles   int
}

// Comment is one entry from the issue/PR comment listing endpoint.
type Comment struct {
	Body string `json:"body"`
}

// CompareRange is the commit-range summary used by the release collector.
type CompareRange struct {
	AheadBy      int
	FilesChanged int
	CommitsCount int
	Additions    int
	Deletions    int
	HTMLURL      string
}

type commitPayload struct {
	Commit struct {
		Author struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type comparePayload struct {
	AheadBy int `json:"ahead_by"`
	Commits []struct{} `json:"commits"`
	Files   []struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"files"`
	HTMLURL string `json:"html_url"`
}

type issuePayload struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	Comments    int       `json:"comments"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
	HTMLURL     string    `json:"html_url"`
	PullRequest *struct{} `json:"pull_request"`
	Labels      []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Reactions struct {
		TotalCount int `json:"total_count"`
	} `json:"reactions"`
}

type prPayload struct {
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Commits      int `json:"commits"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changed_files"`
}

type fileContentPayload struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type prFilePayload struct {
	Filename string `json:"filename"`
}

// Client wraps an httpclient.Client with typed decoding and per-run caching.
type Client struct {
	http  *httpclient.Client
	cache *cache.Cache
}

// New constructs a forge Client over http, memoizing through c.
func New(http *httpclient.Client, c *cache.Cache) *Client {
	return &Client{http: http, cache: c}
}

// BaseURL exposes the underlying client's base URL, used to build web (not
// API) links such as a tag's tree URL.
func (c *Client) BaseURL() string { return c.http.BaseURL() }

// TokenPresent reports whether the underlying client is authenticated.
func (c *Client) TokenPresent() bool { return c.http.TokenPresent() }

func decodeEach[T any](rows []interface{}) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, &httpclient.Error{Kind: httpclient.KindParseFailure, Message: err.Error()}
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &httpclient.Error{Kind: httpclient.KindParseFailure, Message: err.Error()}
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeOne[T any](raw interface{}) (T, error) {
	var v T
	buf, err := json.Marshal(raw)
	if err != nil {
		return v, &httpclient.Error{Kind: httpclient.KindParseFailure, Message: err.Error()}
	}
	if err := json.Unmarshal(buf, &v); err != nil {
		return v, &httpclient.Error{Kind: httpclient.KindParseFailure, Message: err.Error()}
	}
	return v, nil
}

// FetchReleases returns the repo's releases list. Unauthenticated callers
// receive a single bounded page; authenticated callers walk every page.
func (c *Client) FetchReleases(ctx context.Context, repo model.RepoRef) ([]Release, error) {
	v, err := c.cache.Fetch("releases", repo.FullName(), func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/releases", repo.FullName())
		var rows []interface{}
		var err error
		if c.http.TokenPresent() {
			rows, err = c.http.GetPaginated(ctx, path, url.Values{})
		} else {
			rows, err = c.http.GetPage(ctx, path, url.Values{}, 30)
		}
		if err != nil {
			if httpclient.IsNotFound(err) {
				return []Release{}, nil
			}
			return nil, err
		}
		return decodeEach[Release](rows)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Release), nil
}

// FetchTags returns up to 20 tags, per the release collector's fallback cap.
func (c *Client) FetchTags(ctx context.Context, repo model.RepoRef) ([]Tag, error) {
	v, err := c.cache.Fetch("tags", repo.FullName(), func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/tags", repo.FullName())
		rows, err := c.http.GetPage(ctx, path, url.Values{}, 20)
		if err != nil {
			if httpclient.IsNotFound(err) {
				return []Tag{}, nil
			}
			return nil, err
		}
		return decodeEach[Tag](rows)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Tag), nil
}

// FetchTagCommitDate resolves a tag's commit SHA to that commit's authored
// date through the cached commit endpoint.
func (c *Client) FetchTagCommitDate(ctx context.Context, repo model.RepoRef, sha string) (time.Time, error) {
	v, err := c.cache.Fetch("commit_date", repo.FullName()+"@"+sha, func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/commits/%s", repo.FullName(), sha)
		raw, err := c.http.Get(ctx, path, nil)
		if err != nil {
			return nil, err
		}
		commit, err := decodeOne[commitPayload](raw)
		if err != nil {
			return nil, err
		}
		return commit.Commit.Author.Date, nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

// FetchCompareSummary fetches the <base>...<head> compare endpoint. A 404
// (e.g. tag deleted) is treated as "no summary available" rather than an
// error, matching the collector's "include its formatted block if present"
// language.
func (c *Client) FetchCompareSummary(ctx context.Context, repo model.RepoRef, base, head string) (CompareRange, bool, error) {
	v, err := c.cache.Fetch("compare", repo.FullName()+":"+base+"..."+head, func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/compare/%s...%s", repo.FullName(), base, head)
		raw, err := c.http.Get(ctx, path, nil)
		if err != nil {
			if httpclient.IsNotFound(err) {
				return (*CompareRange)(nil), nil
			}
			return nil, err
		}
		payload, err := decodeOne[comparePayload](raw)
		if err != nil {
			return nil, err
		}
		cr := CompareRange{AheadBy: payload.AheadBy, FilesChanged: len(payload.Files), CommitsCount: len(payload.Commits), HTMLURL: payload.HTMLURL}
		for _, f := range payload.Files {
			cr.Additions += f.Additions
			cr.Deletions += f.Deletions
		}
		return &cr, nil
	})
	if err != nil {
		return CompareRange{}, false, err
	}
	cr, ok := v.(*CompareRange)
	if !ok || cr == nil {
		return CompareRange{}, false, nil
	}
	return *cr, true, nil
}

// FetchIssueMeta fetches a single issue or PR's metadata. PR-specific
// fields (base/head/commits/additions/deletions) are populated with a
// second request only when IsPullRequest is true, since the issues endpoint
// alone cannot report them.
func (c *Client) FetchIssueMeta(ctx context.Context, repo model.RepoRef, number int) (IssueMeta, bool, error) {
	v, err := c.cache.Fetch("issue_meta", fmt.Sprintf("%s#%d", repo.FullName(), number), func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/issues/%d", repo.FullName(), number)
		raw, err := c.http.Get(ctx, path, nil)
		if err != nil {
			if httpclient.IsNotFound(err) {
				return (*IssueMeta)(nil), nil
			}
			return nil, err
		}
		meta, err := decodeIssuePayload(raw)
		if err != nil {
			return nil, err
		}
		if meta.IsPullRequest {
			prPath := fmt.Sprintf("/repos/%s/pulls/%d", repo.FullName(), number)
			prRaw, err := c.http.Get(ctx, prPath, nil)
			if err == nil {
				augmentWithPRFields(&meta, prRaw)
			}
		}
		return &meta, nil
	})
	if err != nil {
		return IssueMeta{}, false, err
	}
	meta, ok := v.(*IssueMeta)
	if !ok || meta == nil {
		return IssueMeta{}, false, nil
	}
	return *meta, true, nil
}

func decodeIssuePayload(raw interface{}) (IssueMeta, error) {
	payload, err := decodeOne[issuePayload](raw)
	if err != nil {
		return IssueMeta{}, err
	}

	labels := make([]string, 0, len(payload.Labels))
	for _, l := range payload.Labels {
		labels = append(labels, l.Name)
	}

	return IssueMeta{
		Number:         payload.Number,
		Title:          payload.Title,
		Body:           payload.Body,
		State:          payload.State,
		IsPullRequest:  payload.PullRequest != nil,
		Labels:         labels,
		CommentsCount:  payload.Comments,
		ReactionsTotal: payload.Reactions.TotalCount,
		UpdatedAt:      payload.UpdatedAt,
		CreatedAt:      payload.CreatedAt,
		HTMLURL:        payload.HTMLURL,
	}, nil
}

func augmentWithPRFields(meta *IssueMeta, prRaw interface{}) {
	payload, err := decodeOne[prPayload](prRaw)
	if err != nil {
		return
	}
	meta.BaseRef = payload.Base.Ref
	meta.HeadRef = payload.Head.Ref
	meta.CommitsCount = payload.Commits
	meta.Additions = payload.Additions
	meta.Deletions = payload.Deletions
	meta.ChangedFiles = payload.ChangedFiles
}

// FetchComments returns an issue or PR's comment bodies, paginated fully
// when a token is present and capped to limit otherwise (a single page of 30
// when limit is 0).
func (c *Client) FetchComments(ctx context.Context, repo model.RepoRef, number int, limit int) ([]string, error) {
	v, err := c.cache.Fetch("comments", fmt.Sprintf("%s#%d", repo.FullName(), number), func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo.FullName(), number)
		var rows []interface{}
		var err error
		if c.http.TokenPresent() {
			rows, err = c.http.GetPaginated(ctx, path, url.Values{})
		} else {
			pageSize := limit
			if pageSize <= 0 {
				pageSize = 30
			}
			rows, err = c.http.GetPage(ctx, path, url.Values{}, pageSize)
		}
		if err != nil {
			if httpclient.IsNotFound(err) {
				return []string{}, nil
			}
			return nil, err
		}
		decoded, err := decodeEach[Comment](rows)
		if err != nil {
			return nil, err
		}
		bodies := make([]string, 0, len(decoded))
		for _, cm := range decoded {
			bodies = append(bodies, cm.Body)
		}
		return bodies, nil
	})
	if err != nil {
		return nil, err
	}
	bodies := v.([]string)
	if !c.http.TokenPresent() && limit > 0 && len(bodies) > limit {
		bodies = bodies[:limit]
	}
	return bodies, nil
}

// FetchPRFiles returns a PR's changed-file list, paginated.
func (c *Client) FetchPRFiles(ctx context.Context, repo model.RepoRef, number int) ([]string, error) {
	v, err := c.cache.Fetch("pr_files", fmt.Sprintf("%s#%d", repo.FullName(), number), func() (interface{}, error) {
		path := fmt.Sprintf("/repos/%s/pulls/%d/files", repo.FullName(), number)
		rows, err := c.http.GetPaginated(ctx, path, url.Values{})
		if err != nil {
			if httpclient.IsNotFound(err) {
				return []string{}, nil
			}
			return nil, err
		}
		out := make([]string, 0, len(rows))
		for _, row := range rows {
			decoded, err := decodeOne[prFilePayload](row)
			if err != nil {
				continue
			}
			out = append(out, decoded.Filename)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// FetchFileContent fetches a repository text file's content (base64-decoded)
// at the default branch. A 404 is reported as !found rather than an error.
func (c *Client) FetchFileContent(ctx context.Context, repo model.RepoRef, path string) (string, bool, error) {
	v, err := c.cache.Fetch("file_content", repo.FullName()+":"+path, func() (interface{}, error) {
		apiPath := fmt.Sprintf("/repos/%s/contents/%s", repo.FullName(), path)
		raw, err := c.http.Get(ctx, apiPath, nil)
		if err != nil {
			if httpclient.IsNotFound(err) {
				return "", nil
			}
			return nil, err
		}
		payload, err := decodeOne[fileContentPayload](raw)
		if err != nil {
			return nil, err
		}
		if payload.Content == "" {
			return "", nil
		}
		decoded, err := base64.StdEncoding.DecodeString(stripNewlines(payload.Content))
		if err != nil {
			return "", nil
		}
		return string(decoded), nil
	})
	if err != nil {
		return "", false, err
	}
	content, _ := v.(string)
	return content, content != "", nil
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// FetchIssuesSince lists issues/PRs updated since the given time, sorted
// updated desc, matching IssueCollector's listing query.
func (c *Client) FetchIssuesSince(ctx context.Context, repo model.RepoRef, since time.Time) ([]IssueMeta, error) {
	path := fmt.Sprintf("/repos/%s/issues", repo.FullName())
	q := url.Values{
		"state":     {"all"},
		"sort":      {"updated"},
		"direction": {"desc"},
		"since":     {since.UTC().Format(time.RFC3339)},
	}
	var rows []interface{}
	var err error
	if c.http.TokenPresent() {
		rows, err = c.http.GetPaginated(ctx, path, q)
	} else {
		rows, err = c.http.GetPage(ctx, path, q, 30)
	}
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]IssueMeta, 0, len(rows))
	for _, row := range rows {
		meta, err := decodeIssuePayload(row)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// TreeURL builds the web URL for a tag, used by the tags-only fallback path
// where no release html_url is available.
func (c *Client) TreeURL(repo model.RepoRef, tag string) string {
	host := webHost(c.http.BaseURL())
	return fmt.Sprintf("https://%s/%s/tree/%s", host, repo.FullName(), tag)
}

func webHost(apiBaseURL string) string {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return "github.com"
	}
	if u.Host == "api.github.com" {
		return "github.com"
	}
	return u.Host
}
