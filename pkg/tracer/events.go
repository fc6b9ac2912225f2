// Package tracer implements the Event Tracer: the append-only event stream,
// crash-safe findings/report/run-state persistence, and event subscription.
// Grounded on original_source/strix/telemetry/tracer.py, with the source's
// global-singleton/_agent_instances pattern replaced by a constructor-
// injected Tracer value 
package tracer

import "time"

// EventKind enumerates the recognized event types.
type EventKind string

const (
	EventScanStart            EventKind = "scan_start"
	EventScanEnd              EventKind = "scan_end"
	EventAgentCreated         EventKind = "agent_created"
	EventAgentStateTransition EventKind = "agent_state_transition"
	EventAgentIteration       EventKind = "agent_iteration"
	EventThinkerRequest       EventKind = "thinker_request"
	EventThinkerResponse      EventKind = "thinker_response"
	EventThinkerError         EventKind = "thinker_error"
	EventActionStart          EventKind = "action_start"
	EventActionEnd            EventKind = "action_end"
	EventActionError          EventKind = "action_error"
	EventAgentMessageSent     EventKind = "agent_message_sent"
	EventAgentMessageReceived EventKind = "agent_message_received"
	EventVulnerabilityFound   EventKind = "vulnerability_found"
	EventProgressUpdate       EventKind = "progress_update"
)

// Event is one append-only, timestamped record.
type Event struct {
	EventID   int64          `json:"event_id"`
	EventType EventKind      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Callback is invoked synchronously for every emitted event. Callback
// failures are logged and suppressed; they never block producers.
type Callback func(Event)
