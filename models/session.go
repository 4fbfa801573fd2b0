package models

import "time"

// RunRecord is one persisted workflow run.
type RunRecord struct {
	ID            string
	MarketID      string
	Question      string
	Status        string
	Phase         string
	TradeDecision string
	Confidence    float64
	AbortReason   string
	Output        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MessageRecord is one persisted conversation message of a run.
type MessageRecord struct {
	ID         int64
	RunID      string
	Seq        int
	Role       string
	Phase      string
	ToolName   string
	ToolCallID string
	ToolCalls  string
	Content    string
	Status     string
	CreatedAt  time.Time
}

// RunEvent is what the logger callback streams to a UI while a run executes.
type RunEvent struct {
	RunID   string `json:"run_id,omitempty"`
	Kind    string `json:"kind"`
	Node    string `json:"node,omitempty"`
	Message string `json:"message,omitempty"`
}
