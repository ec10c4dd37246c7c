// Package ingest turns a GitHub repository into an analyzable snapshot:
// metadata, the file tree, the README and a handful of manifest files,
// fingerprinted so downstream caches can detect content drift.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	"gitbridge/internal/apperr"
	"gitbridge/internal/githubapi"
	"gitbridge/internal/models"
)

const (
	// maxFileBytes caps individual file reads.
	maxFileBytes = 64 * 1024
	// maxTreeNodes caps how many tree entries we render or hash.
	maxTreeNodes = 5000
	// maxSelectedFiles caps how many file bodies one snapshot fetches.
	maxSelectedFiles = 24
)

// RepoClient is the slice of the GitHub API the ingestor needs.
type RepoClient interface {
	GetRepoInfo(ctx context.Context, owner, name string) (models.RepoInfo, error)
	GetTree(ctx context.Context, owner, name, ref string) ([]models.TreeEntry, error)
	GetReadme(ctx context.Context, owner, name string) (string, error)
	GetFileContent(ctx context.Context, owner, name, path, ref string, maxBytes int) ([]byte, error)
}

// Snapshot is one repository's state at fetch time.
type Snapshot struct {
	Info        models.RepoInfo
	Tree        []models.TreeEntry
	Readme      string
	Files       map[string]string // selected file path -> content
	ContentHash string
}

// Ingestor fetches repository snapshots.
type Ingestor struct {
	client RepoClient
}

func NewIngestor(client RepoClient) *Ingestor {
	return &Ingestor{client: client}
}

// manifestNames are root-level files worth pulling in full; they anchor the
// architecture analysis on declared dependencies and build configuration.
var manifestNames = map[string]bool{
	"go.mod":             true,
	"go.sum":             false, // noise, never fetch
	"package.json":       true,
	"requirements.txt":   true,
	"pyproject.toml":     true,
	"cargo.toml":         true,
	"pom.xml":            true,
	"build.gradle":       true,
	"gemfile":            true,
	"composer.json":      true,
	"dockerfile":         true,
	"docker-compose.yml": true,
	"makefile":           true,
}

// entryPointNames are root-level source files that show how the program
// starts; second in line after the manifests.
var entryPointNames = map[string]bool{
	"main.go":   true,
	"main.py":   true,
	"app.py":    true,
	"manage.py": true,
	"index.js":  true,
	"index.ts":  true,
	"server.js": true,
	"app.js":    true,
	"main.rs":   true,
	"main.c":    true,
	"main.cpp":  true,
	"setup.py":  true,
}

// sourceDirNames are directories whose first level gets sampled for source
// files, lowest priority of the three tiers.
var sourceDirNames = map[string]bool{
	"src":      true,
	"lib":      true,
	"app":      true,
	"cmd":      true,
	"internal": true,
	"pkg":      true,
	"server":   true,
	"backend":  true,
}

var sourceExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rs": true, ".java": true, ".rb": true, ".php": true,
	".c": true, ".cc": true, ".cpp": true, ".cs": true,
}

// selectionPriority ranks a tree path for content fetching: 0 for root
// manifests, 1 for root entry points, 2 for first-level files in source
// directories, -1 for everything else. Fetching fills lower ranks first and
// the context builder sheds the highest rank first when over budget.
func selectionPriority(p string) int {
	if !strings.Contains(p, "/") {
		lower := strings.ToLower(p)
		switch {
		case manifestNames[lower]:
			return 0
		case entryPointNames[lower]:
			return 1
		}
		return -1
	}
	parts := strings.Split(p, "/")
	if len(parts) != 2 || !sourceDirNames[strings.ToLower(parts[0])] {
		return -1
	}
	name := strings.ToLower(parts[1])
	if strings.HasSuffix(name, "_test.go") || !sourceExts[path.Ext(name)] {
		return -1
	}
	return 2
}

// Fetch builds a Snapshot for the repository URL.
func (g *Ingestor) Fetch(ctx context.Context, repoURL string) (*Snapshot, error) {
	if strings.TrimSpace(repoURL) == "" {
		return nil, apperr.E(apperr.KindInvalidInput, "repo_url is required")
	}
	owner, name, err := githubapi.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	info, err := g.client.GetRepoInfo(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	tree, err := g.client.GetTree(ctx, owner, name, info.DefaultBranch)
	if err != nil {
		return nil, err
	}
	if len(tree) > maxTreeNodes {
		tree = tree[:maxTreeNodes]
	}
	readme, err := g.client.GetReadme(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	type pick struct {
		path string
		prio int
	}
	var picks []pick
	for _, e := range tree {
		if e.Type != "file" {
			continue
		}
		if p := selectionPriority(e.Path); p >= 0 {
			picks = append(picks, pick{e.Path, p})
		}
	}
	sort.Slice(picks, func(i, j int) bool {
		if picks[i].prio != picks[j].prio {
			return picks[i].prio < picks[j].prio
		}
		return picks[i].path < picks[j].path
	})
	if len(picks) > maxSelectedFiles {
		picks = picks[:maxSelectedFiles]
	}

	files := make(map[string]string)
	for _, pk := range picks {
		data, err := g.client.GetFileContent(ctx, owner, name, pk.path, info.DefaultBranch, maxFileBytes)
		if err != nil {
			// A single unreadable file shouldn't sink the snapshot.
			continue
		}
		if data == nil || looksBinary(data) {
			continue
		}
		files[pk.path] = string(data)
	}

	snap := &Snapshot{
		Info:   info,
		Tree:   tree,
		Readme: readme,
		Files:  files,
	}
	snap.ContentHash = hashSnapshot(snap)
	return snap, nil
}

// looksBinary sniffs for NUL bytes in the first KiB.
func looksBinary(data []byte) bool {
	if len(data) > 1024 {
		data = data[:1024]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// hashSnapshot fingerprints the snapshot content. Same inputs, same hash:
// paths sorted, map iteration order removed.
func hashSnapshot(s *Snapshot) string {
	h := sha256.New()
	fmt.Fprintln(h, s.Info.FullName)
	paths := make([]string, 0, len(s.Tree))
	for _, e := range s.Tree {
		paths = append(paths, e.Type+":"+e.Path)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintln(h, p)
	}
	fmt.Fprintln(h, s.Readme)
	filePaths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		filePaths = append(filePaths, p)
	}
	sort.Strings(filePaths)
	for _, p := range filePaths {
		fmt.Fprintln(h, p)
		fmt.Fprintln(h, s.Files[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// treeNode is an in-memory directory for pretty printing.
type treeNode struct {
	name     string
	isDir    bool
	children map[string]*treeNode
	order    []string
}

func newNode(name string, isDir bool) *treeNode {
	return &treeNode{name: name, isDir: isDir, children: map[string]*treeNode{}}
}

func (n *treeNode) child(name string, isDir bool) *treeNode {
	if c, ok := n.children[name]; ok {
		if isDir {
			c.isDir = true
		}
		return c
	}
	c := newNode(name, isDir)
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

// FormatTree renders the entries as an indented tree, directories suffixed
// with "/". Entries past maxTreeNodes are elided with a trailing marker.
func FormatTree(entries []models.TreeEntry) string {
	truncated := false
	if len(entries) > maxTreeNodes {
		entries = entries[:maxTreeNodes]
		truncated = true
	}

	root := newNode("", true)
	for _, e := range entries {
		parts := strings.Split(e.Path, "/")
		cur := root
		for i, part := range parts {
			last := i == len(parts)-1
			cur = cur.child(part, !last || e.Type == "dir")
		}
	}

	var b strings.Builder
	var walk func(n *treeNode, depth int)
	walk = func(n *treeNode, depth int) {
		names := append([]string(nil), n.order...)
		sort.SliceStable(names, func(i, j int) bool {
			a, c := n.children[names[i]], n.children[names[j]]
			if a.isDir != c.isDir {
				return a.isDir
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			c := n.children[name]
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString(name)
			if c.isDir {
				b.WriteString("/")
			}
			b.WriteString("\n")
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	if truncated {
		b.WriteString("... (truncated)\n")
	}
	return b.String()
}

// CollapseTree re-renders the tree with every directory deeper than depth
// folded into a "name/ (... N files)" line. Used when context must shrink.
func CollapseTree(entries []models.TreeEntry, depth int) string {
	counts := map[string]int{}
	var kept []models.TreeEntry
	seen := map[string]bool{}
	for _, e := range entries {
		parts := strings.Split(e.Path, "/")
		if len(parts) <= depth {
			kept = append(kept, e)
			continue
		}
		prefix := path.Join(parts[:depth]...)
		if e.Type == "file" {
			counts[prefix]++
		}
		if !seen[prefix] {
			seen[prefix] = true
			kept = append(kept, models.TreeEntry{Path: prefix, Type: "dir"})
		}
	}

	root := newNode("", true)
	for _, e := range kept {
		parts := strings.Split(e.Path, "/")
		cur := root
		for i, part := range parts {
			last := i == len(parts)-1
			cur = cur.child(part, !last || e.Type == "dir")
		}
	}

	var b strings.Builder
	var walk func(n *treeNode, prefix string, d int)
	walk = func(n *treeNode, prefix string, d int) {
		names := append([]string(nil), n.order...)
		sort.SliceStable(names, func(i, j int) bool {
			a, c := n.children[names[i]], n.children[names[j]]
			if a.isDir != c.isDir {
				return a.isDir
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			c := n.children[name]
			full := path.Join(prefix, name)
			b.WriteString(strings.Repeat("  ", d))
			b.WriteString(name)
			if c.isDir {
				b.WriteString("/")
				if hidden := counts[full]; hidden > 0 {
					fmt.Fprintf(&b, " (... %d files)", hidden)
				}
			}
			b.WriteString("\n")
			walk(c, full, d+1)
		}
	}
	walk(root, "", 0)
	return b.String()
}
