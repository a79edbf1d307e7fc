package functions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markers written by the execution shim around the handler's return value.
const (
	ResultStart = "---RESULT_START---"
	ResultEnd   = "---RESULT_END---"
)

// ExtractResult decodes the first result block in a workload's output.
// Lines outside the block are ignored.
func ExtractResult(output string) (json.RawMessage, error) {
	start := strings.Index(output, ResultStart)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s marker not found", ErrMalformedResult, ResultStart)
	}
	rest := output[start+len(ResultStart):]
	end := strings.Index(rest, ResultEnd)
	if end < 0 {
		return nil, fmt.Errorf("%w: %s marker not found after %s", ErrMalformedResult, ResultEnd, ResultStart)
	}

	body := strings.TrimSpace(rest[:end])
	if !json.Valid([]byte(body)) {
		return nil, fmt.Errorf("%w: result block is not valid JSON", ErrMalformedResult)
	}
	return json.RawMessage(body), nil
}
