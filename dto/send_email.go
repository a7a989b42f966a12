package dto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Recipients accepts either a single address or an array on the wire.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = Recipients{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = Recipients(many)
	return nil
}

// Variables accepts either a JSON object or a JSON-encoded object carried as a
// string (form-data clients). Anything unparseable normalizes to empty.
type Variables map[string]string

func (v *Variables) UnmarshalJSON(data []byte) error {
	*v = Variables{}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		if encoded == "" {
			return nil
		}
		data = []byte(encoded)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		// invalid variables payloads are treated as empty
		return nil
	}
	for k, val := range raw {
		switch typed := val.(type) {
		case string:
			(*v)[k] = typed
		case nil:
			(*v)[k] = ""
		default:
			(*v)[k] = fmt.Sprint(typed)
		}
	}
	return nil
}

// SendEmailRequest is the POST /api/v1/send body.
type SendEmailRequest struct {
	From            string            `json:"from"`
	To              Recipients        `json:"to"`
	Subject         string            `json:"subject"`
	HTML            string            `json:"html"`
	Text            string            `json:"text"`
	TemplateID      string            `json:"templateId"`
	Variables       Variables         `json:"variables"`
	Headers         map[string]string `json:"headers"`
	ReplyTo         string            `json:"replyTo"`
	DisableTracking bool              `json:"disableTracking"`
}

// NormalizedRecipients trims entries and drops empties.
func (r *SendEmailRequest) NormalizedRecipients() []string {
	out := make([]string, 0, len(r.To))
	for _, addr := range r.To {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// SendEmailResponse is the accept-and-enqueue success body.
type SendEmailResponse struct {
	Success    bool   `json:"success"`
	JobID      string `json:"jobId,omitempty"`
	MessageID  string `json:"messageId"`
	Recipients int    `json:"recipients"`
	Suppressed int    `json:"suppressed"`
	Status     string `json:"status"`
}
