// Package podcast turns a repository snapshot into a two-speaker audio
// episode: script generation, per-turn synthesis, assembly and caching.
package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gitbridge/internal/apperr"
	"gitbridge/internal/llm"
	"gitbridge/internal/models"
)

// Script shape bounds. Scripts outside these get one repair round.
const (
	minTurns        = 12
	maxTurns        = 60
	minWordsPerTurn = 8
	maxWordsPerTurn = 80
)

// wordsPerMinute is the speaking rate used for duration targets and
// estimates, tuned for conversational technical content.
const wordsPerMinute = 150

// wordCountTolerance is the accepted deviation of a script's total word
// count from the duration target before a repair round is requested.
const wordCountTolerance = 0.5

const scriptSystemPrompt = "You are an expert at creating engaging, educational technical content for podcasts. You understand code architecture and can explain complex concepts in an accessible, conversational way."

// ScriptResult is the outcome of the script pipeline.
type ScriptResult struct {
	Turns    []models.ScriptTurn
	Analysis string
	Metadata models.PodcastMetadata
}

// ScriptGenerator runs the analyze / structure / dialogue chain.
type ScriptGenerator struct {
	llm llm.Client
}

func NewScriptGenerator(client llm.Client) *ScriptGenerator {
	return &ScriptGenerator{llm: client}
}

// Generate produces a validated script for the repository. repoContext is
// the snapshot rendered for the podcast purpose.
func (g *ScriptGenerator) Generate(ctx context.Context, repoName, repoContext string, durationMinutes int) (*ScriptResult, error) {
	if durationMinutes < 1 || durationMinutes > 15 {
		return nil, apperr.E(apperr.KindInvalidInput, "duration_minutes must be between 1 and 15")
	}

	analysis, err := g.analyze(ctx, repoName, repoContext, durationMinutes)
	if err != nil {
		return nil, err
	}
	structure, err := g.structure(ctx, analysis, durationMinutes)
	if err != nil {
		return nil, err
	}
	turns, err := g.dialogue(ctx, structure, repoName, durationMinutes)
	if err != nil {
		return nil, err
	}

	totalWords := 0
	for _, t := range turns {
		totalWords += t.Words()
	}

	return &ScriptResult{
		Turns:    turns,
		Analysis: analysis,
		Metadata: models.PodcastMetadata{
			RepoName:          repoName,
			EpisodeTitle:      fmt.Sprintf("Deep Dive: Understanding %s", repoName),
			EstimatedDuration: formatDuration(totalWords),
			KeyTopics:         extractKeyTopics(analysis),
			GeneratedAt:       time.Now().UTC(),
			ScriptLength:      len(turns),
		},
	}, nil
}

func (g *ScriptGenerator) analyze(ctx context.Context, repoName, repoContext string, durationMinutes int) (string, error) {
	prompt := fmt.Sprintf(`You are analyzing a GitHub repository to create talking points for an educational tech podcast.

Repository: %s

%s

Your task is to analyze this repository and identify:
1. What type of project this is (web app, API, library, etc.)
2. Key architectural decisions and patterns
3. Interesting technical choices worth discussing
4. Technologies and frameworks used
5. Complex or noteworthy parts that would be educational
6. Potential pain points or challenges the developers likely faced
7. Best practices or anti-patterns visible in the structure
8. Notable dependencies and their purposes

Focus on aspects that would be interesting to discuss in a %d-minute educational podcast between a curious host and a technical expert who understands this codebase. Prioritize the most educational and engaging aspects.

Provide a comprehensive analysis that will serve as the foundation for creating an engaging technical discussion.`,
		repoName, repoContext, durationMinutes)

	out, err := g.llm.Chat(ctx, llm.Params{
		Temperature:     0.6,
		MaxOutputTokens: 2000,
		System:          scriptSystemPrompt,
	}, llm.User(prompt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *ScriptGenerator) structure(ctx context.Context, analysis string, durationMinutes int) (string, error) {
	prompt := fmt.Sprintf(`Based on the following repository analysis, create a structured conversation outline for a %d-minute tech podcast.

Repository Analysis:
%s

Create a natural conversation structure with these sections:
1. Introduction - the host introduces the project and the expert
2. Project Overview - what is this project and why does it matter?
3. Architecture Deep Dive - key technical decisions and structure
4. Implementation Highlights - specific interesting choices or patterns
5. Wrap-up - key takeaways and final thoughts

Target total duration: %d minutes. Scale the depth and number of talking points to fit.

For each section, provide:
- Suggested time allocation
- Key talking points prioritized by educational value
- Natural questions the host might ask to guide the conversation
- Technical concepts the expert should explain clearly

Design this as a natural, engaging conversation between:
- HOST: curious technical interviewer who asks insightful questions
- EXPERT: knowledgeable developer who understands this codebase deeply`,
		durationMinutes, analysis, durationMinutes)

	out, err := g.llm.Chat(ctx, llm.Params{
		Temperature:     0.6,
		MaxOutputTokens: 1500,
		System:          scriptSystemPrompt,
	}, llm.User(prompt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// dialogue generates the final turn list and validates its shape, giving
// the model one repair round before failing.
func (g *ScriptGenerator) dialogue(ctx context.Context, structure, repoName string, durationMinutes int) ([]models.ScriptTurn, error) {
	targetWords := durationMinutes * wordsPerMinute
	prompt := fmt.Sprintf(`Create a natural, engaging %d-minute podcast script based on this conversation structure for the %s repository.

%s

Generate a complete dialogue between a HOST and an EXPERT that feels like two tech enthusiasts discussing an interesting project.

REQUIREMENTS:
1. Aim for roughly %d words of dialogue in total
2. The HOST speaks first and the speakers alternate naturally
3. Each turn is between %d and %d words
4. Include natural conversation elements: follow-up questions, "ah, that makes sense" moments
5. The EXPERT gives concrete examples from the codebase when possible
6. Balance technical depth with accessibility

OUTPUT FORMAT: respond with only a JSON array, no prose and no code fences:
[
  {"speaker": "host", "text": "Welcome to TechDive! Today we're exploring %s..."},
  {"speaker": "expert", "text": "Thanks for having me! What really stood out to me was..."}
]`,
		durationMinutes, repoName, structure, targetWords, minWordsPerTurn, maxWordsPerTurn, repoName)

	raw, err := g.llm.Chat(ctx, llm.Params{
		Temperature:     0.7,
		MaxOutputTokens: 4000,
		System:          scriptSystemPrompt,
	}, llm.User(prompt))
	if err != nil {
		return nil, err
	}

	turns, verr := parseAndValidate(raw, targetWords)
	if verr == nil {
		return turns, nil
	}

	repair := fmt.Sprintf(`Your script was rejected: %s

Fix the problems and return the corrected script. Respond with only the JSON array in the same format, nothing else.

Previous script:
%s`, apperr.Message(verr), raw)

	raw, err = g.llm.Chat(ctx, llm.Params{
		Temperature:     0.7,
		MaxOutputTokens: 4000,
		System:          scriptSystemPrompt,
	}, llm.User(repair))
	if err != nil {
		return nil, err
	}
	turns, verr = parseAndValidate(raw, targetWords)
	if verr != nil {
		return nil, verr
	}
	return turns, nil
}

// parseAndValidate decodes the model's JSON, normalizes it (merging
// consecutive same-speaker turns) and enforces the script shape bounds,
// including the total word count against targetWords (0 skips that check).
func parseAndValidate(raw string, targetWords int) ([]models.ScriptTurn, error) {
	turns, err := parseTurns(raw)
	if err != nil {
		return nil, err
	}
	turns = mergeConsecutive(turns)

	if len(turns) == 0 {
		return nil, apperr.E(apperr.KindValidationFailed, "script has no turns")
	}
	if turns[0].Speaker != models.SpeakerHost {
		return nil, apperr.E(apperr.KindValidationFailed, "the first turn must be spoken by the host")
	}
	if len(turns) < minTurns || len(turns) > maxTurns {
		return nil, apperr.E(apperr.KindValidationFailed,
			"script must have between %d and %d turns, got %d", minTurns, maxTurns, len(turns))
	}
	totalWords := 0
	for i, t := range turns {
		w := t.Words()
		if w < minWordsPerTurn || w > maxWordsPerTurn {
			return nil, apperr.E(apperr.KindValidationFailed,
				"turn %d has %d words, must be between %d and %d", i, w, minWordsPerTurn, maxWordsPerTurn)
		}
		totalWords += w
	}
	if targetWords > 0 {
		lo := int(float64(targetWords) * (1 - wordCountTolerance))
		hi := int(float64(targetWords) * (1 + wordCountTolerance))
		if totalWords < lo || totalWords > hi {
			return nil, apperr.E(apperr.KindValidationFailed,
				"script totals %d words, want about %d for the requested duration", totalWords, targetWords)
		}
	}
	for i := range turns {
		turns[i].Index = i
	}
	return turns, nil
}

func parseTurns(raw string) ([]models.ScriptTurn, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = strings.TrimPrefix(s[i:], "```json")
		s = strings.TrimPrefix(s, "```")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	// Tolerate prose around the array.
	if i := strings.Index(s, "["); i >= 0 {
		if j := strings.LastIndex(s, "]"); j > i {
			s = s[i : j+1]
		}
	}

	var decoded []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, apperr.Wrap(apperr.KindValidationFailed, err, "script is not a valid JSON turn array")
	}

	var turns []models.ScriptTurn
	for _, d := range decoded {
		speaker := strings.ToLower(strings.TrimSpace(d.Speaker))
		text := stripMarkup(d.Text)
		if text == "" {
			continue
		}
		if speaker != models.SpeakerHost && speaker != models.SpeakerExpert {
			return nil, apperr.E(apperr.KindValidationFailed, "unknown speaker %q", d.Speaker)
		}
		turns = append(turns, models.ScriptTurn{Speaker: speaker, Text: text})
	}
	return turns, nil
}

var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

// stripMarkup flattens Markdown the model emits despite the prompt. The TTS
// reads text verbatim, so emphasis markers and code ticks would be spoken.
func stripMarkup(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("**", "", "__", "", "`", "", "*", "", "#", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func mergeConsecutive(turns []models.ScriptTurn) []models.ScriptTurn {
	var out []models.ScriptTurn
	for _, t := range turns {
		if len(out) > 0 && out[len(out)-1].Speaker == t.Speaker {
			out[len(out)-1].Text += " " + t.Text
			continue
		}
		out = append(out, t)
	}
	return out
}

// formatDuration renders the word count as MM:SS at the standard speaking
// rate, rounded to 15-second steps.
func formatDuration(totalWords int) string {
	seconds := float64(totalWords) / wordsPerMinute * 60
	rounded := int(seconds/15+0.5) * 15
	return fmt.Sprintf("%02d:%02d", rounded/60, rounded%60)
}

// keyTopicTerms is the vocabulary scanned for episode metadata topics.
var keyTopicTerms = []string{
	"React", "Vue", "Angular", "Node.js", "TypeScript", "JavaScript",
	"Python", "Go", "Rust", "Java", "Django", "Flask", "FastAPI",
	"API", "REST", "GraphQL", "gRPC", "WebSocket", "OAuth", "JWT",
	"database", "MongoDB", "PostgreSQL", "MySQL", "SQLite", "Redis",
	"Docker", "Kubernetes", "Terraform", "NGINX", "CI/CD", "GitHub Actions",
	"AWS", "GCP", "Azure", "Prometheus", "Grafana",
	"testing", "unit tests", "integration tests", "linting",
	"frontend", "backend", "TailwindCSS",
	"microservices", "monorepo", "architecture", "design patterns", "CLI",
	"TensorFlow", "PyTorch", "LangChain", "OpenAI", "RAG", "embeddings", "LLM",
	"logging", "tracing", "observability",
	"async", "webhook", "scheduler",
	"README", "deployment", "caching",
}

// extractKeyTopics scans the analysis for known tech terms, capped at 8.
func extractKeyTopics(analysis string) []string {
	lower := strings.ToLower(analysis)
	var topics []string
	for _, term := range keyTopicTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			topics = append(topics, term)
			if len(topics) == 8 {
				break
			}
		}
	}
	return topics
}
