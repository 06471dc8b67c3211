package usecase

import (
	"regexp"

	"questmine/internal/core/domain"
)

const extractionInstructions = `You extract questions from exam-paper text.
Return a strict JSON object with exactly two keys:
exam: array of objects {chapter, question, marks} for questions carrying marks,
understanding: array of objects {chapter, question} for questions without marks.
Every exam question must end with its mark allocation as a trailing bracketed integer, e.g. "[10]".
Understanding questions must not contain square brackets at all.
chapter must be copied verbatim from one line of the syllabus topics below.
No markdown, no commentary, no extra keys.

Syllabus topics:
`

const subtopicInstructions = `You extract the topic structure from syllabus text.
Return a strict JSON object with one key:
subtopics: array of objects {code, title}.
code is the dotted section number exactly as printed ("4", "4.2"); title is the heading text.
Include main themes and their subthemes; skip administrative sections.
No markdown, no commentary, no extra keys.

Syllabus:
`

// markJoinRe catches a mark bracket printed on its own line below the
// sentence it scores.
var markJoinRe = regexp.MustCompile(`(\.\s*)\n\[(\d+)\]`)

// BuildExtractionPrompt concatenates the fixed instruction template,
// the rendered taxonomy lines and the document text. The taxonomy
// lines here are the only chapter values validation will accept.
// Orphaned mark brackets are merged onto their question line first so
// the model keeps marks attached to questions.
func BuildExtractionPrompt(nodes []domain.TaxonomyNode, documentText string) string {
	documentText = markJoinRe.ReplaceAllString(documentText, "$1 [$2]")
	return extractionInstructions + domain.RenderLines(nodes) + "\n\nText:\n" + documentText
}

// BuildSubtopicPrompt assembles the syllabus-extraction prompt.
func BuildSubtopicPrompt(syllabusText string) string {
	return subtopicInstructions + syllabusText
}
