package pipeline

import "strings"

// StatusKind enumerates the file states the pipeline can produce. Free-text
// status strings exist only at the DB and UI edge; inside the orchestrator
// the closed type keeps transitions checkable.
type StatusKind int

const (
	StatusAnalyzing StatusKind = iota
	StatusSuggestingColumns
	StatusReady
	StatusError
)

// FileStatus is the tagged status variant. Message is set only for
// StatusError.
type FileStatus struct {
	Kind    StatusKind
	Message string
}

func Analyzing() FileStatus         { return FileStatus{Kind: StatusAnalyzing} }
func SuggestingColumns() FileStatus { return FileStatus{Kind: StatusSuggestingColumns} }
func Ready() FileStatus             { return FileStatus{Kind: StatusReady} }
func Failed(msg string) FileStatus  { return FileStatus{Kind: StatusError, Message: msg} }

const errorPrefix = "Error: "

// String renders the status exactly as the UI polls it.
func (s FileStatus) String() string {
	switch s.Kind {
	case StatusAnalyzing:
		return "Analyzing"
	case StatusSuggestingColumns:
		return "Suggesting columns"
	case StatusReady:
		return "Ready"
	case StatusError:
		return errorPrefix + s.Message
	default:
		return "Analyzing"
	}
}

// ParseStatus recovers the tagged form from a stored string. Unrecognized
// strings parse as an error status carrying the raw text.
func ParseStatus(s string) FileStatus {
	switch s {
	case "Analyzing":
		return Analyzing()
	case "Suggesting columns":
		return SuggestingColumns()
	case "Ready":
		return Ready()
	}
	if strings.HasPrefix(s, errorPrefix) {
		return Failed(strings.TrimPrefix(s, errorPrefix))
	}
	return Failed(s)
}

// IsTerminal reports whether no further pipeline work will touch the file.
func (s FileStatus) IsTerminal() bool {
	return s.Kind == StatusReady || s.Kind == StatusError
}
