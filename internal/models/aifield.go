package models

// AIState is the lifecycle of an externally generated column
type AIState int

const (
	AIPending    AIState = iota // no value and no generation in progress
	AIGenerating                // generation started or value not yet present
	AIReady                     // value available
)

func (s AIState) String() string {
	switch s {
	case AIGenerating:
		return "generating"
	case AIReady:
		return "ready"
	}
	return "pending"
}

// MarshalText renders the state as its name in JSON payloads.
func (s AIState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AIField is the parsed value of an AI column.
// Upstream sends either a plain string or {state, value, isStale}.
type AIField struct {
	State    AIState `json:"state"`
	Value    string  `json:"value,omitempty"`
	IsStale  bool    `json:"isStale,omitempty"`
	RawState string  `json:"rawState,omitempty"`
}

// Ready reports whether a value is available.
func (f AIField) Ready() bool {
	return f.State == AIReady
}

// ParseAIField classifies a raw field value.
func ParseAIField(raw interface{}) AIField {
	switch v := raw.(type) {
	case nil:
		return AIField{State: AIPending}
	case string:
		if v == "" {
			return AIField{State: AIPending}
		}
		return AIField{State: AIReady, Value: v}
	case map[string]interface{}:
		field := AIField{State: AIGenerating}
		if state, ok := v["state"].(string); ok {
			field.RawState = state
		}
		if stale, ok := v["isStale"].(bool); ok {
			field.IsStale = stale
		}
		if value, ok := v["value"].(string); ok && value != "" {
			field.State = AIReady
			field.Value = value
		}
		return field
	}
	return AIField{State: AIPending}
}

// AIField parses a named field of a record.
func (f Fields) AIField(name string) AIField {
	return ParseAIField(f[name])
}

// GeneratingValue and GeneratedValue build the object shape written by
// the enricher into the local table store.
func GeneratingValue() map[string]interface{} {
	return map[string]interface{}{"state": "loading", "value": nil, "isStale": false}
}

func GeneratedValue(value string) map[string]interface{} {
	return map[string]interface{}{"state": "generated", "value": value, "isStale": false}
}
