package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/trajectorie/inference-queue/internal/inference"
)

// promptData is the input to every prompt template.
type promptData struct {
	Input          string
	TargetLanguage string
}

// One template per supported operation. Kept deliberately plain; the
// interesting behavior (retries, concurrency, classification) lives in the
// queue and in error mapping, not in prompt wording.
var promptTemplates = map[inference.Operation]*template.Template{
	inference.OperationTranscription: template.Must(template.New("transcription").Parse(
		`Transcribe the following recorded speech into plain text.
Return only the transcript, with sentence punctuation and no commentary.

{{.Input}}`)),

	inference.OperationTextAnalysis: template.Must(template.New("text_analysis").Parse(
		`Analyze the following assessment response. Summarize the key points,
note strengths and weaknesses, and keep the analysis factual and concise.

{{.Input}}`)),

	inference.OperationTranslation: template.Must(template.New("translation").Parse(
		`Translate the following text into {{.TargetLanguage}}.
Return only the translation, no commentary.

{{.Input}}`)),
}

// buildPrompt renders the prompt for the given request.
func buildPrompt(req inference.Request) (string, error) {
	tmpl, ok := promptTemplates[req.Operation]
	if !ok {
		return "", fmt.Errorf("%w: %q", inference.ErrUnknownOperation, req.Operation)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{
		Input:          req.Input,
		TargetLanguage: req.TargetLanguage,
	}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
