package core

import "time"

// StatusChange is emitted whenever a remesa moves to a new status.
type StatusChange struct {
	RemesaID  string    `json:"remesa_id"`
	ProjectID string    `json:"project_id"`
	Number    int       `json:"remesa_number"`
	Suffix    string    `json:"remesa_suffix"`
	Previous  Status    `json:"previous_status"`
	Status    Status    `json:"status"`
	At        time.Time `json:"at"`
}
