// Package bridge implements the correlated request/response exchange with a
// host process that supplies cloud persistence.
//
// Each request carries an operation name, an optional JSON payload, and a
// globally unique callback id. The host answers asynchronously and out of
// order relative to other in-flight requests; responses are matched back to
// their pending call solely by callback id.
package bridge

import "encoding/json"

// Operations understood by the storage host.
const (
	OpInitialise      = "initialise"
	OpPutRecipe       = "putRecipe"
	OpGetRecipe       = "getRecipe"
	OpListRecipes     = "listRecipes"
	OpSearchRecipes   = "searchRecipes"
	OpAppendDayEvents = "appendDayEvents"
	OpReadDayLog      = "readDayLog"
	OpCompactDayLog   = "compactDayLog"
	OpStreamChanges   = "streamChanges"
)

// Request is one message posted to the host.
type Request struct {
	Op         string          `json:"op"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CallbackID string          `json:"callbackId"`
}

// Status of a host response.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Response is one message received from the host. Payload is set on ok
// responses, Message on error responses.
type Response struct {
	CallbackID string          `json:"callbackId"`
	Status     Status          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Message    string          `json:"message,omitempty"`
}
