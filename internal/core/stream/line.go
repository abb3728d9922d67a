package stream

import "strings"

// DoneSentinel is the data payload that marks the end of a stream
const DoneSentinel = "[DONE]"

// LineKind classifies a single SSE line
type LineKind int

const (
	// LineBlank is an empty line or an empty data payload (event separator)
	LineBlank LineKind = iota
	// LineComment is a ":" comment, used by servers as keep-alive
	LineComment
	// LineControl is an event:, id: or retry: field, or a bare keep-alive
	// data payload such as "data: ping"
	LineControl
	// LineData carries a payload after the data: prefix
	LineData
	// LineDone carries the end-of-stream sentinel
	LineDone
	// LineIgnored is anything that does not follow the SSE field convention
	LineIgnored
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineComment:
		return "comment"
	case LineControl:
		return "control"
	case LineData:
		return "data"
	case LineDone:
		return "done"
	default:
		return "ignored"
	}
}

var controlPrefixes = []string{"event:", "id:", "retry:"}

// keepAlives are bare data payloads some servers send to hold the connection
var keepAlives = []string{"ping", "pong", "keep-alive", "keepalive", "heartbeat"}

// Classify returns the kind of line and, for LineData, the payload with the
// prefix and surrounding whitespace removed.
func Classify(line string) (LineKind, string) {
	if strings.TrimSpace(line) == "" {
		return LineBlank, ""
	}
	if strings.HasPrefix(line, ":") {
		return LineComment, ""
	}
	for _, prefix := range controlPrefixes {
		if strings.HasPrefix(line, prefix) {
			return LineControl, ""
		}
	}

	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return LineIgnored, ""
	}
	payload = strings.TrimSpace(payload)
	switch payload {
	case "":
		return LineBlank, ""
	case DoneSentinel:
		return LineDone, ""
	}
	for _, word := range keepAlives {
		if strings.EqualFold(payload, word) {
			return LineControl, ""
		}
	}
	return LineData, payload
}
