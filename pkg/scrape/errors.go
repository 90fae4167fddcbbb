package scrape

import "fmt"

// ErrorKind classifies a per-item scrape failure for reporting.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindParse   ErrorKind = "parse"
	KindBlocked ErrorKind = "blocked"
	KindTimeout ErrorKind = "timeout"
)

// ScrapeError is a recovered per-item failure. Errors never abort a run;
// they are aggregated and carried to the error-alert step.
type ScrapeError struct {
	Kind    ErrorKind
	Context string // "[watch] url"
	Message string
}

func (e ScrapeError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Context, e.Message, e.Kind)
}

func scrapeErr(kind ErrorKind, watch, url, format string, args ...interface{}) ScrapeError {
	ctx := "[" + watch + "]"
	if url != "" {
		ctx += " " + url
	}
	return ScrapeError{Kind: kind, Context: ctx, Message: fmt.Sprintf(format, args...)}
}

// classifyStatus maps HTTP status codes to error kinds. 403 and 429 are
// the outlet's WAF talking.
func classifyStatus(status int) ErrorKind {
	switch status {
	case 403, 429:
		return KindBlocked
	case 408, 504:
		return KindTimeout
	default:
		return KindNetwork
	}
}
