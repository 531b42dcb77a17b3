package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// RequestAction identifies the privileged operation a sandboxed script is
// asking the controller to approve or answer.
type RequestAction string

// Request actions emitted by the prelude helpers.
const (
	RequestWrite RequestAction = "write_file"
	RequestDocs  RequestAction = "search_docs"
)

// Request is a confirmation request read from the channel file. Exactly one
// request is in flight at a time; the channel file holds either the pending
// request or the controller's response.
type Request struct {
	Action   RequestAction `json:"action"`
	Filename string        `json:"filename,omitempty"`
	Content  string        `json:"content,omitempty"`
	Query    string        `json:"query,omitempty"`

	// seq orders requests within one execution so a late answer to an
	// abandoned request can be told apart from the current one.
	seq int64
}

// Response is the controller's answer, written back to the channel file.
// Resolved is always true; the sandboxed side polls for it.
type Response struct {
	Resolved bool   `json:"resolved"`
	Approved *bool  `json:"approved,omitempty"`
	Feedback string `json:"feedback,omitempty"`
	Result   string `json:"result,omitempty"`
}

// ApproveResponse builds an approval or rejection answer for a write request.
func ApproveResponse(approved bool, feedback string) Response {
	return Response{Resolved: true, Approved: &approved, Feedback: feedback}
}

// DocsResponse builds an answer for a documentation lookup.
func DocsResponse(result string) Response {
	return Response{Resolved: true, Result: result}
}

// readRequest loads and decodes the pending request from the channel file.
func readRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read confirmation request: %w", err)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode confirmation request: %w", err)
	}
	if req.Action == "" {
		return nil, fmt.Errorf("confirmation request has no action")
	}
	return &req, nil
}

// writeResponse overwrites the channel file with the response as one compact
// JSON line. The prelude extracts string fields with sed, so HTML escaping is
// disabled and the encoder's trailing newline is trimmed.
func writeResponse(path string, resp Response) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to encode confirmation response: %w", err)
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write confirmation response: %w", err)
	}
	return nil
}
