package config

import (
	"os"
	"strconv"
)

var (
	AppVersion             = "v1.3.0"
	AppPort                = "3000"
	AppDebug               = false
	AppInstanceName        = "wafilter"
	AppBasicAuthCredential []string
	AppIPAllowlist         []string // plain IPs or CIDR ranges, empty means allow all
	AppBasePath            = ""

	PathStorages = "storages"
	PathQRCode   = "storages/qrcode.png"

	DBURI = "file:storages/wafilter.db?_foreign_keys=on"

	// WebhookURL set from the environment wins over the persisted default
	// destination and is never written back to contacts.json.
	WebhookURL          string
	WebhookSecondaryURL string

	AlertWebhookURL string
	SlackWebhookURL string

	MentionEnabled      = true
	MentionOnly         = false
	MentionWebhookURL   string
	MentionWebhookToken string
	MentionKeywords     = []string{"דוד", "david"}

	ForwardOutgoing       = false
	ForwardMessageUpdates = false
	PresenceLogging       = false

	WhatsappClientEnabled     = true
	WhatsappLogLevel          = "ERROR"
	WhatsappAutoDownloadMedia = true

	LogLevel = "info"

	RecentEventsLimit        = 100
	MessagesPerSource        = 100
	MessagesTotalLimit       = 5000
	MediaMaxFiles            = 500
	MediaMaxBytes      int64 = 10 * 1024 * 1024

	// Message Worker Pool settings
	MessageWorkerPoolSize  int = 10
	MessageWorkerQueueSize int = 500
)

func init() {
	if val := os.Getenv("MESSAGE_WORKER_POOL_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			MessageWorkerPoolSize = parsed
		}
	}
	if val := os.Getenv("MESSAGE_WORKER_QUEUE_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			MessageWorkerQueueSize = parsed
		}
	}
}
