package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/ternarybob/shellprobe/internal/models"
)

// Markdown renders the run report as a markdown document
func Markdown(report *models.RunReport) string {
	var b strings.Builder

	result := "PASS"
	if !report.Passed() {
		result = "FAIL"
	}

	fmt.Fprintf(&b, "# Run %s\n\n", report.ID)
	fmt.Fprintf(&b, "- **Result:** %s\n", result)
	fmt.Fprintf(&b, "- **Started:** %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %.2fs\n", report.Duration().Seconds())
	if !report.Window.IsZero() {
		fmt.Fprintf(&b, "- **Window:** %s\n", cell(report.Window.String()))
	}
	if report.SetupError != nil {
		fmt.Fprintf(&b, "- **Setup error:** %s\n", cell(report.SetupError.Error()))
	}
	if report.TeardownError != nil {
		fmt.Fprintf(&b, "- **Teardown error:** %s\n", cell(report.TeardownError.Error()))
	}

	b.WriteString("\n## Scenarios\n\n")
	b.WriteString("| Scenario | Status | Duration | Error |\n")
	b.WriteString("|----------|--------|----------|-------|\n")
	for _, res := range report.Results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		fmt.Fprintf(&b, "| %s | %s | %.2fs | %s |\n", cell(res.Name), Status(res), res.Duration.Seconds(), cell(errText))
	}

	for _, res := range report.Results {
		if res.Passed || res.Skipped {
			continue
		}
		fmt.Fprintf(&b, "\n## Diagnostics: %s\n\n", res.Name)
		if res.Diagnostics != "" {
			b.WriteString("```text\n")
			b.WriteString(strings.TrimRight(res.Diagnostics, "\n"))
			b.WriteString("\n```\n")
		}
		if len(res.Notes) > 0 {
			b.WriteString("\nNotes:\n\n")
			for _, note := range res.Notes {
				fmt.Fprintf(&b, "- %s\n", cell(note))
			}
		}
		if len(res.Artifacts) > 0 {
			b.WriteString("\nArtifacts:\n\n")
			for _, a := range res.Artifacts {
				fmt.Fprintf(&b, "- `%s`\n", a)
			}
		}
	}

	return b.String()
}

// cell flattens text for a single markdown line or table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2em auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
pre { background: #f5f5f5; padding: 8px; overflow-x: auto; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderHTML converts markdown to a standalone HTML page
func RenderHTML(markdown, title string) ([]byte, error) {
	var body bytes.Buffer
	if err := newMarkdown().Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return page.Bytes(), nil
}
