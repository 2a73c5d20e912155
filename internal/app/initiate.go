package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/mailmerge/internal/pkg/clock"
	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goroutine"
	"github.com/shandysiswandi/mailmerge/internal/pkg/idempotency"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
	"github.com/shandysiswandi/mailmerge/internal/pkg/messaging"
	"github.com/shandysiswandi/mailmerge/internal/pkg/router"
	"github.com/shandysiswandi/mailmerge/internal/pkg/storage"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/pkg/validator"
)

func (a *App) initConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.NewViper(path, defaultConfig)
	if err != nil {
		slog.Error("failed to init config", "path", path, "error", err)
		os.Exit(1)
	}

	if tz := cfg.GetString("app.tz"); tz != "" {
		//nolint:errcheck,gosec // ignore error
		os.Setenv("TZ", tz)
	}

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		LogLevel:         a.config.GetString("instrument.log_level"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
		MaxLogValueLen:   a.config.GetInt("instrument.log_max_value_len"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator
}

// initCache connects Redis for idempotent submissions. Without redis.url the
// service runs without duplicate protection.
func (a *App) initCache() {
	url := strings.TrimSpace(a.config.GetString("redis.url"))
	if url == "" {
		slog.Warn("redis url is not configured, idempotency keys are ignored")
		return
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	a.cacheConn = rdb
	a.idemp = idempotency.New(a.cacheConn,
		idempotency.WithPrefix("mailmerge:idempotency:"),
		idempotency.WithResultTTL(a.config.GetSecond("mailmerge.idempotency_ttl_seconds")),
	)
}

func (a *App) initStorage() {
	driver := strings.TrimSpace(a.config.GetString("storage.driver"))

	stg, err := storage.NewFromDriver(a.ctx, driver, storage.FactoryOptions{
		S3: storage.S3Options{
			Bucket:       strings.TrimSpace(a.config.GetString("storage.s3.bucket")),
			Region:       strings.TrimSpace(a.config.GetString("storage.s3.region")),
			Endpoint:     strings.TrimSpace(a.config.GetString("storage.s3.endpoint")),
			AccessKey:    strings.TrimSpace(a.config.GetString("storage.s3.access_key")),
			SecretKey:    strings.TrimSpace(a.config.GetString("storage.s3.secret_key")),
			SessionToken: strings.TrimSpace(a.config.GetString("storage.s3.session_token")),
			UsePathStyle: a.config.GetBool("storage.s3.use_path_style"),
		},
		GCS: storage.GCSOptions{
			Bucket:          strings.TrimSpace(a.config.GetString("storage.gcs.bucket")),
			CredentialsFile: strings.TrimSpace(a.config.GetString("storage.gcs.credentials_file")),
			Endpoint:        strings.TrimSpace(a.config.GetString("storage.gcs.endpoint")),
		},
		MinIO: storage.MinIOOptions{
			Bucket:       strings.TrimSpace(a.config.GetString("storage.minio.bucket")),
			Region:       strings.TrimSpace(a.config.GetString("storage.minio.region")),
			Endpoint:     strings.TrimSpace(a.config.GetString("storage.minio.endpoint")),
			AccessKey:    strings.TrimSpace(a.config.GetString("storage.minio.access_key")),
			SecretKey:    strings.TrimSpace(a.config.GetString("storage.minio.secret_key")),
			SessionToken: strings.TrimSpace(a.config.GetString("storage.minio.session_token")),
			UseSSL:       a.config.GetBool("storage.minio.use_ssl"),
		},
	})
	if err != nil {
		slog.Error("failed to init storage", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.storage = stg
}

func (a *App) initMessaging() {
	driver := a.config.GetString("messaging.driver")
	client, err := messaging.NewFromDriver(driver, messaging.NATSConfig{
		URL:  a.config.GetString("messaging.nats.url"),
		Name: a.config.GetString("messaging.nats.name"),
		Options: []nats.Option{
			nats.Timeout(a.config.GetSecond("messaging.nats.connect_timeout_seconds")),
			nats.ReconnectWait(a.config.GetSecond("messaging.nats.reconnect_wait_seconds")),
			nats.MaxReconnects(a.config.GetInt("messaging.nats.max_reconnects")),
		},
	})
	if err != nil {
		slog.Error("failed to init messaging", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.messaging = client
}

// initMail installs a factory that builds one pooled SMTP transport per batch.
// Settings are read on every call so a reloaded config applies to the next batch.
func (a *App) initMail() {
	a.mail = func(context.Context) (mail.Mail, error) {
		return mail.NewSMTP(mail.SMTPConfig{
			Host:                     strings.TrimSpace(a.config.GetString("mail.smtp.host")),
			Port:                     a.config.GetInt("mail.smtp.port"),
			Username:                 a.config.GetString("mail.smtp.username"),
			Password:                 a.config.GetString("mail.smtp.password"),
			From:                     a.config.GetString("mail.smtp.from"),
			FromName:                 a.config.GetString("mail.smtp.from_name"),
			Security:                 a.config.GetString("mail.smtp.security"),
			AllowAnonymous:           a.config.GetBool("mail.smtp.allow_anonymous"),
			AuthMechanism:            a.config.GetString("mail.smtp.auth_mechanism"),
			LocalName:                a.config.GetString("mail.smtp.local_name"),
			InsecureSkipVerify:       a.config.GetBool("mail.smtp.insecure_skip_verify"),
			MaxConnections:           a.config.GetInt("mail.smtp.max_connections"),
			MaxMessagesPerConnection: a.config.GetInt("mail.smtp.max_messages_per_connection"),
			RateLimit:                a.config.GetFloat64("mail.smtp.rate_limit_per_second"),
			RateBurst:                a.config.GetInt("mail.smtp.rate_burst"),
			RetryAttempts:            a.config.GetInt("mail.smtp.retry_attempts"),
			RetryBaseDelay:           a.config.GetMillisecond("mail.smtp.retry_base_delay_ms"),
			DialTimeout:              a.config.GetSecond("mail.smtp.dial_timeout_seconds"),
			CommandTimeout:           a.config.GetSecond("mail.smtp.command_timeout_seconds"),
		})
	}
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:     a.config,
		UUID:       a.uuid,
		Instrument: a.ins,
	})

	a.router.GET("/health", func(*router.Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	a.closers = []closer{
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Messaging",
			fn: func(context.Context) error {
				return a.messaging.Close()
			},
		},
		{
			name: "Redis",
			fn: func(context.Context) error {
				if a.cacheConn == nil {
					return nil
				}
				return a.cacheConn.Close()
			},
		},
		{
			name: "Storage",
			fn: func(context.Context) error {
				return a.storage.Close()
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}
