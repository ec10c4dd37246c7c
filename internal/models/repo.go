package models

// RepoInfo is the metadata slice of a GitHub repository we expose to clients.
type RepoInfo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description,omitempty"`
	Language      string `json:"language,omitempty"`
	Stars         int    `json:"stars"`
	Forks         int    `json:"forks"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"url"`
}

// TreeEntry is one node of a repository file tree. Type is "file" or "dir".
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// ParseRepoRequest is the payload for POST /parse-repo.
type ParseRepoRequest struct {
	RepoURL string `json:"repo_url"`
}

// ParseRepoResponse carries the pretty-printed tree and README for the client.
type ParseRepoResponse struct {
	FileTree      string   `json:"file_tree"`
	ReadmeContent string   `json:"readme_content"`
	RepoInfo      RepoInfo `json:"repo_info"`
}

// GenerateDiagramRequest is the payload for POST /generate-diagram.
type GenerateDiagramRequest struct {
	FileTree      string `json:"file_tree"`
	ReadmeContent string `json:"readme_content,omitempty"`
}

// GenerateDiagramResponse carries the Mermaid code plus the stage-1 prose.
type GenerateDiagramResponse struct {
	DiagramCode string `json:"diagram_code"`
	Explanation string `json:"explanation,omitempty"`
}
