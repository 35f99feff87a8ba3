package models

import (
	"time"
)

// ModuleInfo is the registry-visible metadata of a pluggable module. The
// invocable capability itself lives in the registry; this is the data half
// that persists and travels over the API.
type ModuleInfo struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Image       string                 `json:"image,omitempty"`
	Endpoint    string                 `json:"endpoint,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
