package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// Purpose selects how a snapshot is weighted when rendered into LLM context.
type Purpose string

const (
	PurposeDiagram Purpose = "diagram" // tree-heavy, README second
	PurposePodcast Purpose = "podcast" // README-heavy, narrative first
	PurposeQA      Purpose = "qa"      // balanced, manifests included
)

// EstimateTokens is the cheap chars/4 heuristic. It overcounts for dense
// code and undercounts for prose, which is acceptable for budgeting.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// maxFileTier is the highest selection rank the purpose wants rendered.
// Diagrams lean on manifests and entry points, podcast narration carries no
// file bodies at all, QA uses everything the snapshot fetched.
func maxFileTier(purpose Purpose) int {
	switch purpose {
	case PurposePodcast:
		return -1
	case PurposeDiagram:
		return 1
	default:
		return 2
	}
}

// BuildContext renders the snapshot into a single prompt-ready string that
// fits within budgetTokens. When over budget it degrades in stages: shed
// file bodies from the least important selection tier upward, cut the
// README at a paragraph boundary, then collapse deep subtrees. The repo
// header and a (possibly collapsed) tree always survive.
func BuildContext(snap *Snapshot, purpose Purpose, budgetTokens int) string {
	// 10% headroom so the caller's own prompt text fits alongside.
	budget := budgetTokens * 9 / 10
	if budget <= 0 {
		budget = budgetTokens
	}

	tree := FormatTree(snap.Tree)
	readme := snap.Readme

	render := func(tree, readme string, tier int) string {
		var b strings.Builder
		fmt.Fprintf(&b, "Repository: %s\n", snap.Info.FullName)
		if snap.Info.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", snap.Info.Description)
		}
		if snap.Info.Language != "" {
			fmt.Fprintf(&b, "Primary language: %s\n", snap.Info.Language)
		}
		fmt.Fprintf(&b, "Stars: %d  Forks: %d\n", snap.Info.Stars, snap.Info.Forks)

		sections := []func(){
			func() {
				b.WriteString("\n## File Tree\n")
				b.WriteString(tree)
			},
			func() {
				if readme != "" {
					b.WriteString("\n## README\n")
					b.WriteString(readme)
					b.WriteString("\n")
				}
			},
		}
		if purpose == PurposePodcast {
			sections[0], sections[1] = sections[1], sections[0]
		}
		sections[0]()
		sections[1]()

		if tier >= 0 {
			var keys []string
			for _, p := range sortedKeys(snap.Files) {
				if selectionPriority(p) <= tier {
					keys = append(keys, p)
				}
			}
			if len(keys) > 0 {
				b.WriteString("\n## Key Files\n")
				for _, p := range keys {
					fmt.Fprintf(&b, "\n### %s\n%s\n", p, snap.Files[p])
				}
			}
		}
		return b.String()
	}

	tier := maxFileTier(purpose)
	out := render(tree, readme, tier)
	if EstimateTokens(out) <= budget {
		return out
	}

	// Stage 1: shed file bodies, least important tier first.
	for tier--; tier >= -1; tier-- {
		out = render(tree, readme, tier)
		if EstimateTokens(out) <= budget {
			return out
		}
	}

	// Stage 2: shrink the README, halving until it fits or bottoms out.
	for limit := len(readme) / 2; limit > 512; limit /= 2 {
		readme = truncateAtParagraph(snap.Readme, limit)
		out = render(tree, readme, -1)
		if EstimateTokens(out) <= budget {
			return out
		}
	}
	readme = truncateAtParagraph(snap.Readme, 512)

	// Stage 3: collapse the tree, shallower each round.
	for depth := 3; depth >= 1; depth-- {
		out = render(CollapseTree(snap.Tree, depth), readme, -1)
		if EstimateTokens(out) <= budget {
			return out
		}
	}
	return out
}

// truncateAtParagraph cuts s to at most limit bytes, preferring the last
// blank-line boundary before the cut.
func truncateAtParagraph(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndex(cut, "\n\n"); i > limit/4 {
		cut = cut[:i]
	}
	return cut + "\n\n[README truncated]"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
