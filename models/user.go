package models

import "time"

type User struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	LastRewardDate time.Time `db:"last_reward_date" json:"last_reward_date"`
	EventIDs       []string  `db:"event_ids" json:"event_ids"`
}

// RemoveEvent drops eventID from the organizer's event list and reports whether it was present.
func (u *User) RemoveEvent(eventID string) bool {
	for i, id := range u.EventIDs {
		if id == eventID {
			u.EventIDs = append(u.EventIDs[:i:i], u.EventIDs[i+1:]...)
			return true
		}
	}
	return false
}
