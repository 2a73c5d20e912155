package app

// defaultConfig fills keys the config file may leave out.
var defaultConfig = map[string]any{
	"app.server.http.address":                     ":8080",
	"app.server.http.read_timeout_seconds":        30,
	"app.server.http.read_header_timeout_seconds": 5,
	"app.server.http.write_timeout_seconds":       300,
	"app.server.http.idle_timeout_seconds":        60,
	"app.server.max_goroutine":                    100,
	"app.http.max_body_bytes":                     25 << 20,

	"instrument.service_name": "mailmerge",
	"instrument.log_level":    "info",

	"modules.mailmerge.enabled": true,

	"mailmerge.dispatch.max_concurrency": 10,
	"mailmerge.max_asset_bytes":          10 << 20,
	"mailmerge.idempotency_ttl_seconds":  86400,
	"mailmerge.consumer_concurrency":     1,

	"mail.smtp.port":                        587,
	"mail.smtp.security":                    "starttls",
	"mail.smtp.max_connections":             5,
	"mail.smtp.max_messages_per_connection": 100,
	"mail.smtp.rate_limit_per_second":       30,
	"mail.smtp.retry_attempts":              3,
	"mail.smtp.retry_base_delay_ms":         500,
	"mail.smtp.dial_timeout_seconds":        15,
	"mail.smtp.command_timeout_seconds":     60,

	"storage.driver":   "none",
	"messaging.driver": "none",

	"messaging.nats.connect_timeout_seconds": 5,
	"messaging.nats.reconnect_wait_seconds":  2,
	"messaging.nats.max_reconnects":          60,
}
