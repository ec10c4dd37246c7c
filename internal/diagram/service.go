// Package diagram runs the three-stage architecture diagram pipeline:
// explain the system, map components to real paths, draw Mermaid.
package diagram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"gitbridge/internal/apperr"
	"gitbridge/internal/llm"
	"gitbridge/internal/models"
)

const cacheSize = 128

// Service generates diagrams and memoizes results per input fingerprint.
type Service interface {
	Generate(ctx context.Context, fileTree, readme string) (models.GenerateDiagramResponse, error)
}

type service struct {
	llm   llm.Client
	cache *lru.TwoQueueCache[string, models.GenerateDiagramResponse]
}

func NewService(client llm.Client) Service {
	cache, _ := lru.New2Q[string, models.GenerateDiagramResponse](cacheSize)
	return &service{llm: client, cache: cache}
}

// Generate runs the full pipeline. Results are cached on a fingerprint of
// the inputs, so re-submitting an unchanged repository costs nothing.
func (s *service) Generate(ctx context.Context, fileTree, readme string) (models.GenerateDiagramResponse, error) {
	if strings.TrimSpace(fileTree) == "" {
		return models.GenerateDiagramResponse{}, apperr.E(apperr.KindInvalidInput, "file_tree is required")
	}

	key := fingerprint(fileTree, readme)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	explanation, err := s.explain(ctx, fileTree, readme)
	if err != nil {
		return models.GenerateDiagramResponse{}, err
	}

	mapping, err := s.mapComponents(ctx, explanation, fileTree)
	if err != nil {
		return models.GenerateDiagramResponse{}, err
	}

	code, err := s.draw(ctx, explanation, mapping)
	if err != nil {
		return models.GenerateDiagramResponse{}, err
	}

	resp := models.GenerateDiagramResponse{DiagramCode: code, Explanation: explanation}
	s.cache.Add(key, resp)
	return resp, nil
}

// explain is stage 1: prose description of the architecture.
func (s *service) explain(ctx context.Context, fileTree, readme string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<file_tree>\n%s\n</file_tree>\n", fileTree)
	if readme != "" {
		fmt.Fprintf(&b, "<readme>\n%s\n</readme>\n", readme)
	}

	out, err := s.llm.Chat(ctx, llm.Params{
		Temperature:     0.3,
		MaxOutputTokens: 1500,
		System:          explanationPrompt,
	}, llm.User(b.String()))
	if err != nil {
		return "", err
	}

	explanation := extractTag(out, "explanation")
	if strings.TrimSpace(explanation) == "" {
		return "", apperr.E(apperr.KindValidationFailed, "model produced an empty explanation")
	}
	return strings.TrimSpace(explanation), nil
}

// mapComponents is stage 2: pin explanation components to real paths. Paths
// the model invented are dropped; if the majority are invented the stage is
// re-prompted once with the offending list.
func (s *service) mapComponents(ctx context.Context, explanation, fileTree string) (string, error) {
	user := fmt.Sprintf("<explanation>\n%s\n</explanation>\n\n<file_tree>\n%s\n</file_tree>", explanation, fileTree)
	names := treeNames(fileTree)

	system := mappingPrompt
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.llm.Chat(ctx, llm.Params{
			Temperature:     0,
			MaxOutputTokens: 1000,
			System:          system,
		}, llm.User(user))
		if err != nil {
			return "", err
		}

		valid, invalid := filterMapping(extractTag(out, "component_mapping"), names)
		if len(invalid) == 0 || (len(valid) >= len(invalid) && len(valid) > 0) {
			if len(invalid) > 0 {
				log.Printf("diagram: dropped %d hallucinated mapping paths", len(invalid))
			}
			return strings.Join(valid, "\n"), nil
		}
		system = mappingPrompt + fmt.Sprintf(mappingRetryNote, strings.Join(invalid, ", "))
	}

	// The mapping is a bonus input for stage 3; an empty one still draws.
	return "", nil
}

// draw is stage 3: Mermaid code, with one repair round on invalid output.
func (s *service) draw(ctx context.Context, explanation, mapping string) (string, error) {
	user := fmt.Sprintf("<explanation>\n%s\n</explanation>\n\n<component_mapping>\n%s\n</component_mapping>", explanation, mapping)

	out, err := s.llm.Chat(ctx, llm.Params{
		Temperature:     0,
		MaxOutputTokens: 2000,
		System:          mermaidPrompt,
	}, llm.User(user))
	if err != nil {
		return "", err
	}

	code := Sanitize(out)
	verr := Validate(code)
	if verr == nil {
		return code, nil
	}

	repaired, err := s.llm.Chat(ctx, llm.Params{
		Temperature:     0,
		MaxOutputTokens: 2000,
		System:          mermaidPrompt,
	}, llm.User(fmt.Sprintf(mermaidRepairPrompt, apperr.Message(verr), code)))
	if err != nil {
		return "", err
	}

	code = Sanitize(repaired)
	if err := Validate(code); err != nil {
		return "", err
	}
	return code, nil
}

// extractTag pulls the body of <tag>...</tag>, or returns s whole when the
// model skipped the tags.
func extractTag(s, tag string) string {
	open, shut := "<"+tag+">", "</"+tag+">"
	i := strings.Index(s, open)
	if i < 0 {
		return s
	}
	rest := s[i+len(open):]
	if j := strings.Index(rest, shut); j >= 0 {
		return rest[:j]
	}
	return rest
}

// treeNames collects every file and directory name that appears in the
// rendered tree, used to spot invented paths.
func treeNames(fileTree string) map[string]bool {
	names := map[string]bool{}
	for _, line := range strings.Split(fileTree, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "...") {
			continue
		}
		if i := strings.Index(t, " ("); i >= 0 {
			t = t[:i]
		}
		names[strings.TrimSuffix(t, "/")] = true
	}
	return names
}

// filterMapping splits "N. [Component]: [path]" lines into those whose path
// segments all exist in the tree and those that don't.
func filterMapping(mapping string, names map[string]bool) (valid, invalid []string) {
	for _, line := range strings.Split(mapping, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		colon := strings.LastIndex(t, ":")
		if colon < 0 {
			continue
		}
		path := strings.Trim(strings.TrimSpace(t[colon+1:]), "[]`\"")
		if path == "" {
			continue
		}
		ok := true
		for _, seg := range strings.Split(strings.TrimSuffix(path, "/"), "/") {
			if !names[seg] {
				ok = false
				break
			}
		}
		if ok {
			valid = append(valid, t)
		} else {
			invalid = append(invalid, path)
		}
	}
	return valid, invalid
}

func fingerprint(fileTree, readme string) string {
	h := sha256.New()
	h.Write([]byte(fileTree))
	h.Write([]byte{0})
	h.Write([]byte(readme))
	return hex.EncodeToString(h.Sum(nil))
}
