package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails is an RFC 7807 problem. Extensions are emitted as top-level
// members but never replace the standard ones.
type ProblemDetails struct {
	Type       string
	Title      string
	Status     int
	Detail     string
	Instance   string
	Extensions map[string]interface{}
}

func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WithExtension sets a top-level extension member
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// Render sets the response status for chi/render
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	members := map[string]interface{}{}
	for k, v := range pd.Extensions {
		members[k] = v
	}

	std := map[string]interface{}{
		"type":     pd.Type,
		"title":    pd.Title,
		"status":   pd.Status,
		"detail":   pd.Detail,
		"instance": pd.Instance,
	}
	for k, v := range std {
		if s, ok := v.(string); ok && s == "" && k != "type" && k != "title" {
			delete(members, k)
			continue
		}
		members[k] = v
	}
	return json.Marshal(members)
}
