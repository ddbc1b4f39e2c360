package model

import "time"

const (
	NotificationMatch = "match"
)

type (
	Notification struct {
		Type   string    `json:"type"`
		To     string    `json:"to"`
		Handle string    `json:"handle"`
		At     time.Time `json:"at"`
	}
)
