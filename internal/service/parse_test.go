package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvaluationPlainJSON(t *testing.T) {
	result, err := parseEvaluation(`{"score": 82.5, "rationale": "Strong backend profile", "matches": ["Go", "PostgreSQL"], "gaps": ["Kubernetes"]}`)
	require.NoError(t, err)

	assert.Equal(t, 82.5, result.Score)
	assert.Equal(t, "Strong backend profile", result.Rationale)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, result.Matches)
	assert.Equal(t, []string{"Kubernetes"}, result.Gaps)
	assert.False(t, result.ScoreClamped)
}

func TestParseEvaluationMarkdownFenced(t *testing.T) {
	content := "Here is my evaluation:\n```json\n{\"score\": 70, \"rationale\": \"ok\", \"matches\": [], \"gaps\": []}\n```\nLet me know if you need more."
	result, err := parseEvaluation(content)
	require.NoError(t, err)
	assert.Equal(t, 70.0, result.Score)
}

func TestParseEvaluationSurroundingProse(t *testing.T) {
	content := `Sure! {"score": 55, "rationale": "average fit"} hope this helps`
	result, err := parseEvaluation(content)
	require.NoError(t, err)
	assert.Equal(t, 55.0, result.Score)
	assert.Empty(t, result.Matches)
	assert.Empty(t, result.Gaps)
}

func TestParseEvaluationClampsHighScore(t *testing.T) {
	result, err := parseEvaluation(`{"score": 150, "rationale": "off the charts"}`)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Score)
	assert.True(t, result.ScoreClamped)
}

func TestParseEvaluationClampsNegativeScore(t *testing.T) {
	result, err := parseEvaluation(`{"score": -3, "rationale": "poor fit"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Score)
	assert.True(t, result.ScoreClamped)
}

func TestParseEvaluationMissingScore(t *testing.T) {
	_, err := parseEvaluation(`{"rationale": "no score here"}`)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestParseEvaluationNonNumericScore(t *testing.T) {
	_, err := parseEvaluation(`{"score": "eighty", "rationale": "text score"}`)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestParseEvaluationMissingRationale(t *testing.T) {
	_, err := parseEvaluation(`{"score": 80}`)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestParseEvaluationNoJSONAtAll(t *testing.T) {
	_, err := parseEvaluation("I'm sorry, I can't evaluate this CV.")
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestErrorKindTransient(t *testing.T) {
	assert.True(t, KindTimeout.Transient())
	assert.True(t, KindRateLimited.Transient())
	assert.True(t, KindServiceUnavailable.Transient())
	assert.False(t, KindInvalidResponse.Transient())
	assert.False(t, KindUpstreamRejected.Transient())
}
