package types

// Event represents a typed ledger event in its broadcastable form. Consumers
// (audit log, websocket subscribers) treat it as an audit record, never as a
// source of truth for balances.
type Event struct {
	Type       string            `json:"type"`
	Timestamp  int64             `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or an empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
