package engine

import "time"

// SystemStatus is the runtime metadata reported to operators.
type SystemStatus struct {
	BotName    string    `json:"bot_name"`
	BotID      string    `json:"bot_id"`
	Symbol     string    `json:"symbol"`
	DryRun     bool      `json:"dry_run"`
	Testnet    bool      `json:"testnet"`
	MockFeed   bool      `json:"mock_feed"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	ServerTime time.Time `json:"server_time"`
}
