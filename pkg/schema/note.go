package schema

// NotePayload is the payload of every agent.note.* event. The category is
// carried by the event type tag, not the payload.
type NotePayload struct {
	AgentID        string   `json:"agent_id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags,omitempty"`
	RelatedFile    string   `json:"related_file,omitempty"`
	RelatedFeature string   `json:"related_feature,omitempty"`
}
