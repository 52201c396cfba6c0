package nex

import "time"

// Nex is a group (or personal) container for shared expenses. Group
// administration lives outside this service; the engine only reads.
type Nex struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is a user's membership in a nex. User accounts are managed
// elsewhere; the display fields are denormalized onto the membership.
type Member struct {
	NexID       string    `json:"nexId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}
