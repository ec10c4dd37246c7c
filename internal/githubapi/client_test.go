package githubapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/apperr"
)

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		in          string
		owner, name string
		wantErr     bool
	}{
		{in: "https://github.com/gofiber/fiber", owner: "gofiber", name: "fiber"},
		{in: "https://github.com/gofiber/fiber/", owner: "gofiber", name: "fiber"},
		{in: "https://github.com/gofiber/fiber.git", owner: "gofiber", name: "fiber"},
		{in: "github.com/gofiber/fiber/tree/main/docs", owner: "gofiber", name: "fiber"},
		{in: "gofiber/fiber", owner: "gofiber", name: "fiber"},
		{in: "https://gitlab.com/foo/bar", wantErr: true},
		{in: "https://github.com/onlyowner", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		owner, name, err := ParseRepoURL(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.owner, owner)
		assert.Equal(t, tc.name, name)
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("test-token", 5*time.Second).WithBaseURL(srv.URL)
}

func TestGetRepoInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/gofiber/fiber", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"name":"fiber","full_name":"gofiber/fiber","description":"Express inspired",
			"language":"Go","stargazers_count":33000,"forks_count":1700,
			"default_branch":"main","html_url":"https://github.com/gofiber/fiber",
			"owner":{"login":"gofiber"}
		}`))
	})

	info, err := c.GetRepoInfo(context.Background(), "gofiber", "fiber")
	require.NoError(t, err)
	assert.Equal(t, "gofiber", info.Owner)
	assert.Equal(t, "fiber", info.Name)
	assert.Equal(t, "main", info.DefaultBranch)
	assert.Equal(t, 33000, info.Stars)
}

func TestGetRepoInfoNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetRepoInfo(context.Background(), "nope", "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstreamNotFound, apperr.KindOf(err))
}

func TestGetRawRetriesRateLimit(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"name":"fiber","owner":{"login":"gofiber"},"default_branch":"main"}`))
	})

	info, err := c.GetRepoInfo(context.Background(), "gofiber", "fiber")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "fiber", info.Name)
}

func TestGetRawRateLimitExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.GetRepoInfo(context.Background(), "gofiber", "fiber")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstreamRateLimited, apperr.KindOf(err))
}

func TestGetTree(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/git/trees/main", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		w.Write([]byte(`{"tree":[
			{"path":"cmd","type":"tree"},
			{"path":"cmd/server/main.go","type":"blob"},
			{"path":"go.mod","type":"blob"}
		],"truncated":false}`))
	})

	entries, err := c.GetTree(context.Background(), "o", "r", "main")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "dir", entries[0].Type)
	assert.Equal(t, "file", entries[1].Type)
	assert.Equal(t, "cmd/server/main.go", entries[1].Path)
}

func TestGetReadmeMissingIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	readme, err := c.GetReadme(context.Background(), "o", "r")
	require.NoError(t, err)
	assert.Empty(t, readme)
}

func TestGetFileContent(t *testing.T) {
	content := "module example\n\ngo 1.24\n"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/contents/go.mod", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		enc := base64.StdEncoding.EncodeToString([]byte(content))
		w.Write([]byte(`{"encoding":"base64","size":` + "24" + `,"content":"` + enc + `"}`))
	})

	data, err := c.GetFileContent(context.Background(), "o", "r", "go.mod", "main", 65536)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestGetFileContentTooLargeSkipped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"encoding":"base64","size":9999999,"content":""}`))
	})
	data, err := c.GetFileContent(context.Background(), "o", "r", "big.bin", "main", 65536)
	require.NoError(t, err)
	assert.Nil(t, data)
}
