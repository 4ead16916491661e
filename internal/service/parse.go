package service

import (
	"strings"

	"github.com/tidwall/gjson"
)

// parseEvaluation turns raw LLM output into an EvaluationResult. Models wrap
// JSON in markdown fences or chat it up with surrounding prose, so the JSON
// object is located before parsing. A missing score or absent rationale is
// KindInvalidResponse; a score outside [0,100] in an otherwise well-formed
// response is clamped and flagged, not fatal.
func parseEvaluation(content string) (*EvaluationResult, error) {
	jsonStr := extractJSONObject(content)
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		return nil, &Error{Kind: KindInvalidResponse, Message: "response contains no parseable JSON object"}
	}

	scoreField := gjson.Get(jsonStr, "score")
	if !scoreField.Exists() || scoreField.Type != gjson.Number {
		return nil, &Error{Kind: KindInvalidResponse, Message: "response missing numeric 'score' field"}
	}

	rationale := gjson.Get(jsonStr, "rationale").String()
	if strings.TrimSpace(rationale) == "" {
		return nil, &Error{Kind: KindInvalidResponse, Message: "response missing 'rationale' field"}
	}

	result := &EvaluationResult{
		Score:     scoreField.Float(),
		Rationale: rationale,
		Matches:   stringList(gjson.Get(jsonStr, "matches")),
		Gaps:      stringList(gjson.Get(jsonStr, "gaps")),
	}

	if result.Score < 0 {
		result.Score = 0
		result.ScoreClamped = true
	} else if result.Score > 100 {
		result.Score = 100
		result.ScoreClamped = true
	}

	return result, nil
}

// extractJSONObject pulls the first JSON object out of content, stripping
// markdown code fences first.
func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)

	if idx := strings.Index(content, "```"); idx != -1 {
		rest := content[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			content = rest[:end]
		} else {
			content = rest
		}
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return []string{}
	}
	items := v.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}
