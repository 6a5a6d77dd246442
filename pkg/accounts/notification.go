package accounts

import "time"

// Notification is a message to a single recipient. Only ReadAt changes after creation.
type Notification struct {
	ID          int64          `json:"id"`
	RecipientID int64          `json:"recipient_id"`
	EventType   string         `json:"event_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
}

// Field returns the value of a filterable column
func (n *Notification) Field(name string) any {
	switch name {
	case "id":
		return n.ID
	case "recipient_id":
		return n.RecipientID
	case "event_type":
		return n.EventType
	}
	return nil
}

// Announcement is a site-wide notice managed by system admins
type Announcement struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Field returns the value of a filterable column
func (a *Announcement) Field(name string) any {
	switch name {
	case "id":
		return a.ID
	case "published":
		return a.Published
	case "created_by":
		return a.CreatedBy
	}
	return nil
}
