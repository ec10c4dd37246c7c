// Package githubapi is a minimal wrapper around GitHub's REST API v3.
// It covers just the endpoints the ingestion layer requires.
package githubapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitbridge/internal/apperr"
	"gitbridge/internal/models"
)

const defaultBaseURL = "https://api.github.com"

// Client talks to the GitHub REST API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient returns a ready-to-use GitHub API client.
// token may be an empty string, but you will be subject to very low rate-limits.
func NewClient(token string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
		token:   token,
	}
}

// WithBaseURL points the client at a different API root (tests).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimSuffix(base, "/")
	return c
}

// ParseRepoURL extracts (owner, name) from a repository URL. Accepted forms:
// https://github.com/owner/name[/...], github.com/owner/name, owner/name.
func ParseRepoURL(raw string) (owner, name string, err error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	if i := strings.Index(s, "github.com/"); i >= 0 {
		s = s[i+len("github.com/"):]
	} else if strings.Contains(s, "://") {
		return "", "", apperr.E(apperr.KindInvalidInput, "unsupported repository host in %q", raw)
	}
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperr.E(apperr.KindInvalidInput, "invalid repository URL %q", raw)
	}
	name = strings.TrimSuffix(parts[1], ".git")
	return parts[0], name, nil
}

// GetRepoInfo fetches repository metadata, including the default branch.
func (c *Client) GetRepoInfo(ctx context.Context, owner, name string) (models.RepoInfo, error) {
	var raw struct {
		Name          string `json:"name"`
		FullName      string `json:"full_name"`
		Description   string `json:"description"`
		Language      string `json:"language"`
		Stars         int    `json:"stargazers_count"`
		Forks         int    `json:"forks_count"`
		DefaultBranch string `json:"default_branch"`
		HTMLURL       string `json:"html_url"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(name))
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return models.RepoInfo{}, err
	}
	return models.RepoInfo{
		Owner:         raw.Owner.Login,
		Name:          raw.Name,
		FullName:      raw.FullName,
		Description:   raw.Description,
		Language:      raw.Language,
		Stars:         raw.Stars,
		Forks:         raw.Forks,
		DefaultBranch: raw.DefaultBranch,
		HTMLURL:       raw.HTMLURL,
	}, nil
}

// GetTree fetches the full recursive tree for ref. GitHub flags trees it
// truncated server-side; callers apply their own node cap on top.
func (c *Client) GetTree(ctx context.Context, owner, name, ref string) ([]models.TreeEntry, error) {
	var raw struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"` // "blob" | "tree"
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, url.PathEscape(owner), url.PathEscape(name), url.PathEscape(ref))
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}
	entries := make([]models.TreeEntry, 0, len(raw.Tree))
	for _, t := range raw.Tree {
		typ := "file"
		if t.Type == "tree" {
			typ = "dir"
		}
		entries = append(entries, models.TreeEntry{Path: t.Path, Type: typ})
	}
	return entries, nil
}

// GetReadme returns the rendered-source README text, or "" when none exists.
func (c *Client) GetReadme(ctx context.Context, owner, name string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/readme", c.baseURL, url.PathEscape(owner), url.PathEscape(name))
	body, err := c.getRaw(ctx, u, "application/vnd.github.raw+json")
	if err != nil {
		if apperr.Is(err, apperr.KindUpstreamNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(body), nil
}

// GetFileContent reads one file via the contents API. Files larger than
// maxBytes return (nil, nil) so the caller can skip them silently.
func (c *Client) GetFileContent(ctx context.Context, owner, name, path, ref string, maxBytes int) ([]byte, error) {
	var raw struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
		Size     int    `json:"size"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(name), escapePath(path), url.QueryEscape(ref))
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}
	if raw.Size > maxBytes {
		return nil, nil
	}
	if raw.Encoding != "base64" {
		return []byte(raw.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamNetwork, err, "decode contents of %s", path)
	}
	return data, nil
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	body, err := c.getRaw(ctx, u, "application/vnd.github+json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.KindUpstreamNetwork, err, "decode github response")
	}
	return nil
}

// getRaw issues a GET with auth headers and retries rate limits with
// exponential backoff (3 attempts), then maps the status to an error kind.
func (c *Client) getRaw(ctx context.Context, u, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(500*(1<<attempt))*time.Millisecond +
				time.Duration(rand.Intn(250))*time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindUpstreamNetwork, ctx.Err(), "github request cancelled")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "build github request")
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", "gitbridge-api")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = apperr.Wrap(apperr.KindUpstreamNetwork, err, "github request failed")
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				lastErr = apperr.Wrap(apperr.KindUpstreamNetwork, readErr, "read github response")
				continue
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, apperr.E(apperr.KindUpstreamNotFound, "repository resource not found")
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, apperr.E(apperr.KindUpstreamUnauthorized, "github authentication failed")
		case rateLimited(resp):
			lastErr = apperr.E(apperr.KindUpstreamRateLimited, "github rate limit exceeded")
			continue
		case resp.StatusCode == http.StatusForbidden:
			return nil, apperr.E(apperr.KindUpstreamUnauthorized, "github access forbidden")
		default:
			lastErr = apperr.E(apperr.KindUpstreamNetwork, "github: unexpected status %s", resp.Status)
			if resp.StatusCode < 500 {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

// rateLimited covers both explicit 429s and the 403 GitHub returns with an
// exhausted X-RateLimit-Remaining.
func rateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}
