package worker

import "encoding/json"

// Status is the outcome of a worker call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome of one correlated worker exchange. On success
// Output holds the raw result payload; on error Message describes what
// went wrong (and Code carries the remote error code, if any).
type Result struct {
	Status  Status          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    int             `json:"code,omitempty"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Decode unmarshals the success payload into v.
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.Output, v)
}

func errorResult(message string) Result {
	return Result{Status: StatusError, Message: message}
}
