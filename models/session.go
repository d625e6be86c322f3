package models

import (
	"time"
)

// Session - a connected wallet
type Session struct {
	ID             string `gorm:"primaryKey" json:"id"`
	Address        string `json:"address"`
	TestnetAddress string `json:"testnetAddress"`
	MainnetAddress string `json:"mainnetAddress"`
	Network        string `json:"network"`
	// Pending is set between the connect prompt and sign-in completion
	Pending   bool      `json:"pending"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName - Return table name
func (t Session) TableName() string {
	return "sessions"
}

// Submission statuses
const (
	SubmissionSubmitted = "submitted"
	SubmissionCancelled = "cancelled"
	SubmissionFailed    = "failed"
)

// Submission - one contract call handed to the wallet
type Submission struct {
	ID           string `gorm:"primaryKey" json:"id"`
	TrackingID   string `json:"trackingId"`
	Sender       string `gorm:"index" json:"sender"`
	FunctionName string `json:"functionName"`
	// Arguments holds the hex-encoded Clarity arguments, comma separated
	Arguments string    `json:"arguments"`
	TxID      string    `json:"txId,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName - Return table name
func (t Submission) TableName() string {
	return "submissions"
}
