package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/apperr"
	"gitbridge/internal/llm/llmtest"
	"gitbridge/internal/models"
)

// scriptJSON builds a well-formed alternating script with n turns, sized so
// the total word count lands on the five-minute target the fixtures request.
func scriptJSON(t *testing.T, n int) string {
	t.Helper()
	perTurn := 5 * wordsPerMinute / n
	type turn struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}
	filler := strings.Fields("covering the architecture the tooling and the design choices in some depth")
	turns := make([]turn, n)
	for i := range turns {
		speaker := models.SpeakerHost
		if i%2 == 1 {
			speaker = models.SpeakerExpert
		}
		words := []string{"This", "is", "turn", "number", fmt.Sprint(i)}
		for len(words) < perTurn {
			words = append(words, filler[len(words)%len(filler)])
		}
		turns[i] = turn{Speaker: speaker, Text: strings.Join(words, " ")}
	}
	data, err := json.Marshal(turns)
	require.NoError(t, err)
	return string(data)
}

func TestGenerateScript(t *testing.T) {
	stub := llmtest.Script(
		"The project is a Go HTTP API using Fiber, PostgreSQL and Docker.",
		"1. Introduction\n2. Overview\n3. Deep dive\n4. Wrap-up",
		scriptJSON(t, 14),
	)
	g := NewScriptGenerator(stub)

	res, err := g.Generate(context.Background(), "acme/rocket", "Repository: acme/rocket", 5)
	require.NoError(t, err)

	assert.Len(t, res.Turns, 14)
	assert.Equal(t, models.SpeakerHost, res.Turns[0].Speaker)
	assert.Equal(t, 0, res.Turns[0].Index)
	assert.Equal(t, 13, res.Turns[13].Index)

	assert.Equal(t, "Deep Dive: Understanding acme/rocket", res.Metadata.EpisodeTitle)
	assert.Equal(t, 14, res.Metadata.ScriptLength)
	assert.Contains(t, res.Metadata.KeyTopics, "Docker")
	assert.NotEmpty(t, res.Metadata.EstimatedDuration)

	require.Len(t, stub.Calls, 3)
	assert.Contains(t, stub.Calls[2].Messages[0].Text, "HOST speaks first")
}

func TestGenerateScriptRepairsBadDialogue(t *testing.T) {
	stub := llmtest.Script(
		"analysis",
		"structure",
		"I will not produce JSON, here is prose instead",
		scriptJSON(t, 12),
	)
	g := NewScriptGenerator(stub)

	res, err := g.Generate(context.Background(), "acme/rocket", "ctx", 5)
	require.NoError(t, err)
	assert.Len(t, res.Turns, 12)
	assert.Len(t, stub.Calls, 4)
	assert.Contains(t, stub.Calls[3].Messages[0].Text, "rejected")
}

func TestGenerateScriptFailsAfterRepair(t *testing.T) {
	stub := llmtest.Script("analysis", "structure", "garbage", "still garbage")
	g := NewScriptGenerator(stub)

	_, err := g.Generate(context.Background(), "acme/rocket", "ctx", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))
}

func TestGenerateScriptRejectsDuration(t *testing.T) {
	g := NewScriptGenerator(llmtest.Script())
	for _, d := range []int{0, -1, 16} {
		_, err := g.Generate(context.Background(), "r", "ctx", d)
		require.Error(t, err, d)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	}
}

func TestParseAndValidateMergesConsecutive(t *testing.T) {
	var parts []string
	parts = append(parts, `{"speaker":"host","text":"Welcome to the show everyone, glad you could join"}`)
	parts = append(parts, `{"speaker":"host","text":"today we look at a fascinating repository together"}`)
	for i := 0; i < 12; i++ {
		speaker := models.SpeakerExpert
		if i%2 == 1 {
			speaker = models.SpeakerHost
		}
		parts = append(parts, fmt.Sprintf(
			`{"speaker":"%s","text":"turn %d padded with plenty of additional words for the checker"}`, speaker, i))
	}
	raw := "[" + strings.Join(parts, ",") + "]"

	turns, err := parseAndValidate(raw, 150)
	require.NoError(t, err)
	assert.Equal(t, 13, len(turns))
	assert.Contains(t, turns[0].Text, "Welcome to the show")
	assert.Contains(t, turns[0].Text, "fascinating repository")
	for i := 1; i < len(turns); i++ {
		assert.NotEqual(t, turns[i-1].Speaker, turns[i].Speaker, "alternation after merge")
	}
}

func TestParseAndValidateHostFirst(t *testing.T) {
	raw := strings.Replace(scriptJSONStatic(14), `"speaker":"host"`, `"speaker":"expert"`, 1)
	_, err := parseAndValidate(raw, 150)
	require.Error(t, err)
	assert.Contains(t, apperr.Message(err), "host")
}

func scriptJSONStatic(n int) string {
	var parts []string
	for i := 0; i < n; i++ {
		speaker := "host"
		if i%2 == 1 {
			speaker = "expert"
		}
		parts = append(parts, fmt.Sprintf(
			`{"speaker":"%s","text":"turn %d padded with plenty of additional words for validation"}`, speaker, i))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestParseAndValidateBounds(t *testing.T) {
	_, err := parseAndValidate(scriptJSONStatic(4), 150)
	require.Error(t, err)
	assert.Contains(t, apperr.Message(err), "turns")

	long := strings.Repeat("word ", 90)
	raw := strings.Replace(scriptJSONStatic(14), "turn 3 padded with plenty of additional words for validation", strings.TrimSpace(long), 1)
	_, err = parseAndValidate(raw, 150)
	require.Error(t, err)
	assert.Contains(t, apperr.Message(err), "words")
}

func TestParseAndValidateWordTarget(t *testing.T) {
	// 14 turns of ~10 words is fine for one minute but far short of five.
	raw := scriptJSONStatic(14)
	_, err := parseAndValidate(raw, 150)
	require.NoError(t, err)

	_, err = parseAndValidate(raw, 750)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "totals")
}

func TestGenerateScriptRepairsShortScript(t *testing.T) {
	stub := llmtest.Script(
		"analysis",
		"structure",
		scriptJSONStatic(14), // ~140 words against a 750-word target
		scriptJSON(t, 14),
	)
	g := NewScriptGenerator(stub)

	res, err := g.Generate(context.Background(), "acme/rocket", "ctx", 5)
	require.NoError(t, err)
	assert.Len(t, res.Turns, 14)
	require.Len(t, stub.Calls, 4)
	assert.Contains(t, stub.Calls[3].Messages[0].Text, "totals")
}

func TestParseTurnsToleratesFencesAndProse(t *testing.T) {
	raw := "Here is your script:\n```json\n" + scriptJSONStatic(12) + "\n```\nEnjoy!"
	turns, err := parseTurns(raw)
	require.NoError(t, err)
	assert.Len(t, turns, 12)
}

func TestParseTurnsStripsMarkup(t *testing.T) {
	raw := "[{\"speaker\":\"host\",\"text\":\"**Welcome** to the show, today we dig into `main.py` and the [architecture docs](https://example.com/docs) together\"}]"
	turns, err := parseTurns(raw)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t,
		"Welcome to the show, today we dig into main.py and the architecture docs together",
		turns[0].Text)
}

func TestParseTurnsRejectsUnknownSpeaker(t *testing.T) {
	_, err := parseTurns(`[{"speaker":"narrator","text":"hello there friends of the show today"}]`)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "05:00", formatDuration(750)) // 750 words at 150 wpm
	assert.Equal(t, "01:00", formatDuration(150))
	assert.Equal(t, "00:30", formatDuration(75))
}

func TestExtractKeyTopicsCap(t *testing.T) {
	analysis := "React TypeScript Docker Kubernetes PostgreSQL Redis GraphQL AWS Prometheus testing"
	topics := extractKeyTopics(analysis)
	assert.Len(t, topics, 8)
}
