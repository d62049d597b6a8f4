package models

// AdminNotification is a pending item in the admin inbox, e.g. an event awaiting approval.
type AdminNotification struct {
	ID      string `db:"id" json:"id"`
	EventID string `db:"event_id" json:"event_id"`
	Message string `db:"message" json:"message"`
	Status  string `db:"status" json:"status"`
}
