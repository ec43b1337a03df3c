package client

import (
	"encoding/json"
	"strings"
)

// JobHandle identifies one server-side job.
type JobHandle struct {
	JobID string
}

// Resolve extracts the job handle from an upload acknowledgement body.
func Resolve(body []byte) (JobHandle, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return JobHandle{}, &ProtocolError{Reason: "upload response is not a JSON object", Body: string(body)}
	}

	raw, ok := fields["job_id"]
	if !ok {
		return JobHandle{}, &ProtocolError{Reason: "upload response has no job_id", Body: string(body)}
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return JobHandle{}, &ProtocolError{Reason: "job_id is not a string", Body: string(body)}
	}
	if strings.TrimSpace(id) == "" {
		return JobHandle{}, &ProtocolError{Reason: "job_id is empty", Body: string(body)}
	}

	return JobHandle{JobID: id}, nil
}
