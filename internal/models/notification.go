package models

// Notification is a per-user reminder generated by the background cycle,
// e.g. a period sitting in draft with missing required uploads.
type Notification struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	EntityType string `json:"entityType"` // "period"
	EntityID   string `json:"entityId"`
	Message    string `json:"message"`
	IsRead     bool   `json:"isRead"`
	CreatedAt  string `json:"createdAt"`
}

// ActivityEntry is one audit-trail row.
type ActivityEntry struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName,omitempty"`
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Details    string `json:"details,omitempty"` // JSON blob
	CreatedAt  string `json:"createdAt"`
}
