package diagram

import (
	"strings"

	"gitbridge/internal/apperr"
)

// Sanitize strips markdown fences and the syntax the renderer chokes on:
// subgraph style lines, init declarations, dynamic import references and
// click events pointing at script files.
func Sanitize(code string) string {
	code = stripFence(code)

	var out []string
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "style "):
			continue
		case strings.Contains(trimmed, "%%{init"):
			continue
		case strings.Contains(trimmed, "import(") || strings.Contains(trimmed, "require("):
			continue
		case strings.Contains(trimmed, "module:") || strings.Contains(trimmed, "dynamic:"):
			continue
		case strings.HasPrefix(trimmed, "click ") &&
			(strings.Contains(trimmed, ".js") || strings.Contains(trimmed, ".ts")):
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func stripFence(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.Index(code, "```mermaid"); i >= 0 {
		code = code[i+len("```mermaid"):]
		if j := strings.Index(code, "```"); j >= 0 {
			code = code[:j]
		}
	} else if strings.HasPrefix(code, "```") {
		code = strings.TrimPrefix(code, "```")
		if j := strings.Index(code, "```"); j >= 0 {
			code = code[:j]
		}
	}
	return strings.TrimSpace(code)
}

// Validate applies the same cheap structural checks the renderer relies on:
// a flowchart/graph header, at least one edge, balanced subgraph blocks and
// a minimum size that filters out refusals and apologies.
func Validate(code string) error {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) < 50 {
		return apperr.E(apperr.KindValidationFailed, "diagram code is too short")
	}
	if !strings.Contains(trimmed, "flowchart") && !strings.Contains(trimmed, "graph") {
		return apperr.E(apperr.KindValidationFailed, "missing flowchart/graph declaration")
	}
	if !strings.Contains(trimmed, "-->") && !strings.Contains(trimmed, "---") {
		return apperr.E(apperr.KindValidationFailed, "diagram has no edges")
	}

	depth := 0
	for _, line := range strings.Split(trimmed, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "subgraph") {
			depth++
		}
		if t == "end" {
			depth--
			if depth < 0 {
				return apperr.E(apperr.KindValidationFailed, "unbalanced subgraph blocks")
			}
		}
	}
	if depth != 0 {
		return apperr.E(apperr.KindValidationFailed, "unbalanced subgraph blocks")
	}
	return nil
}
