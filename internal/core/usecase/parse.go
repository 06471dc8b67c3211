package usecase

import (
	"encoding/json"
	"errors"
	"strings"

	"questmine/internal/core/domain"
)

// StripCodeFences removes markdown code-fence wrapping from a raw
// oracle response. Language tags on the opening fence ("```json") are
// dropped with it.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		first := strings.TrimSpace(text[:nl])
		if !strings.ContainsAny(first, "{}[]") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractJSONObject narrows a response to its outermost JSON object so
// prose before or after the payload does not break decoding.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// ParseExtractionResult decodes the oracle's response into an
// ExtractionResult. A response that does not parse is a hard failure
// for the document, surfaced as ErrMalformedOracleOutput.
func ParseExtractionResult(raw string) (domain.ExtractionResult, error) {
	body := extractJSONObject(StripCodeFences(raw))

	var result domain.ExtractionResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrMalformedOracleOutput, "parse extraction result", err)
	}
	return result, nil
}

// ParseSubtopics decodes a syllabus-extraction response. Both the
// enveloped {"subtopics": [...]} shape and a bare array are accepted.
func ParseSubtopics(raw string) ([]domain.TaxonomyNode, error) {
	body := StripCodeFences(raw)

	var envelope struct {
		Subtopics []domain.TaxonomyNode `json:"subtopics"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(body)), &envelope); err == nil && len(envelope.Subtopics) > 0 {
		return envelope.Subtopics, nil
	}

	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start >= 0 && end > start {
		var nodes []domain.TaxonomyNode
		if err := json.Unmarshal([]byte(body[start:end+1]), &nodes); err == nil {
			return nodes, nil
		}
	}

	return nil, domain.WrapError(domain.ErrMalformedOracleOutput, "parse subtopics", errors.New("response is neither a subtopic envelope nor an array"))
}
