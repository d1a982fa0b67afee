package ui

import (
	"sort"
	"strings"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
)

// Result is a boxed command outcome printed by the one-shot commands.
type Result struct {
	Type    ResultType
	Title   string
	Details map[string]string
	Error   error
	Hint    string // multi-line troubleshooting text
	Width   int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details map[string]string) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, hint string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Hint: hint, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := clampWidth(r.Width)
	var lines []string

	if r.Type == ResultSuccess {
		lines = append(lines, SuccessTitleStyle.Render(SuccessMarker+"  "+r.Title))
	} else {
		lines = append(lines, ErrorTitleStyle.Render(FailureMarker+"  "+r.Title))
	}

	if len(r.Details) > 0 {
		lines = append(lines, "")
		keys := make([]string, 0, len(r.Details))
		for k := range r.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, KeyStyle.Render(k+":")+" "+ValueStyle.Render(r.Details[k]))
		}
	}

	if r.Error != nil {
		lines = append(lines, "", ErrorMessageStyle.Render("Error: "+r.Error.Error()))
	}
	if r.Hint != "" {
		lines = append(lines, "", HintStyle.Render(r.Hint))
	}

	border := SuccessColor
	if r.Type == ResultFailure {
		border = ErrorColor
	}
	return BoxStyle(width, border).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
