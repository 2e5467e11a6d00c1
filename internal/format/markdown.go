package format

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

// MarkdownFormatter renders an Envelope as human-readable markdown, for
// pasting into an incident writeup or PR description.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a markdown formatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes env as markdown, choosing the section template that
// matches whichever result the envelope carries.
func (mf *MarkdownFormatter) Format(w io.Writer, env Envelope) error {
	tmpl, err := template.New("envelope").Funcs(mf.templateFuncs()).Parse(envelopeTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, env)
}

// Extension returns the file extension for markdown.
func (mf *MarkdownFormatter) Extension() string {
	return ".md"
}

func (mf *MarkdownFormatter) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
	}
}

const envelopeTemplate = `# {{ .Command }}

{{- if .Err }}

**Rejected:** {{ .Err.Code }} ({{ .Err.Phase }})

{{ .Err.Message }}
{{- if .Err.Invariant }}

Invariant: {{ .Err.Invariant }}
{{- end }}
{{- end }}

{{- if .WriteOutcome }}

**Status:** {{ .WriteOutcome.Status }}
**Plan:** {{ .WriteOutcome.PlanHash }}
**Role:** {{ .WriteOutcome.Role }}
**Path:** {{ .WriteOutcome.Path }}

## Preflight

- Success: {{ .WriteOutcome.Preflight.Success }}
- Exit code: {{ .WriteOutcome.Preflight.ExitCode }}
- Duration: {{ .WriteOutcome.Preflight.DurationMS }}ms
{{- end }}

{{- if .AuditRecords }}

## Audit records

{{- range .AuditRecords }}
- seq {{ .Seq }}: {{ .Tool }} / {{ .Intent }}{{ if .ErrorCode }} ({{ .ErrorCode }}){{ end }}
{{- end }}
{{- end }}

{{- if .Plans }}

## Plans

{{- range .Plans }}
- {{ .Hash }}: {{ .Entry.Status }} (scope: {{ join .Entry.Scope ", " }})
{{- end }}
{{- end }}

{{- if .Verdict }}

## Verdict

**Pass:** {{ .Verdict.Pass }}

{{- if .Verdict.Findings }}

| Kind | Seqs | Detail |
|------|------|--------|
{{- range .Verdict.Findings }}
| {{ .Kind }} | {{ .Seqs }} | {{ .Detail }} |
{{- end }}
{{- end }}
{{- end }}
`
