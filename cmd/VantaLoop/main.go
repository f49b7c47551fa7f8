package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vantaloop/VantaLoop/internal/api"
	"github.com/vantaloop/VantaLoop/internal/digest"
	"github.com/vantaloop/VantaLoop/internal/genai"
	"github.com/vantaloop/VantaLoop/internal/lockfile"
	"github.com/vantaloop/VantaLoop/internal/messaging"
	"github.com/vantaloop/VantaLoop/internal/scheduler"
	"github.com/vantaloop/VantaLoop/internal/store"
	"github.com/vantaloop/VantaLoop/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VantaLoop state data
	DefaultStateDir = "/var/lib/vantaloop"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "vantaloop.db"
	// outboxPollInterval is how often queued digest texts are picked up
	outboxPollInterval = 10 * time.Second
)

func main() {
	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		os.Exit(2)
	}
	initializeLogger(flags.logLevel)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping VantaLoop", "state_dir", flags.stateDir, "api_addr", flags.apiAddr)
	if err := run(ctx, flags); err != nil {
		slog.Error("VantaLoop failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("VantaLoop exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	APIAddr          string
	OpenAIKey        string
	OpenAIModel      string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	DigestSchedule   string
	DigestRecipients string
	ErrorReply       string
	LogLevel         string
	GenAIDebug       bool
}

// Flags holds the resolved command line configuration
type Flags struct {
	stateDir         string
	dbDSN            string
	apiAddr          string
	openaiKey        string
	openaiModel      string
	twilioSID        string
	twilioToken      string
	twilioFrom       string
	digestSchedule   string
	digestRecipients []string
	errorReply       string
	logLevel         string
	genaiDebug       bool
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: util.ParseLogLevel(level)}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:         util.GetEnvDefault("VANTALOOP_STATE_DIR", DefaultStateDir),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		APIAddr:          util.GetEnvDefault("API_ADDR", api.DefaultAddr),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      util.GetEnvDefault("OPENAI_MODEL", genai.DefaultModel),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		DigestSchedule:   util.GetEnvDefault("DIGEST_SCHEDULE", scheduler.DefaultDigestSchedule),
		DigestRecipients: os.Getenv("DIGEST_RECIPIENTS"),
		ErrorReply:       os.Getenv("SMS_ERROR_REPLY"),
		LogLevel:         util.GetEnvDefault("LOG_LEVEL", "info"),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
	}

	slog.Debug("environment variables loaded",
		"VANTALOOP_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"DIGEST_SCHEDULE", config.DigestSchedule)

	return config
}

// parseCommandLineFlags parses args with environment defaults. When no DSN is
// given the SQLite database lives in the state directory.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var f Flags
	var recipients string
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for VantaLoop data (overrides $VANTALOOP_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseURL, "database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.openaiModel, "openai-model", config.OpenAIModel, "OpenAI model for digests and summaries (overrides $OPENAI_MODEL)")
	fs.StringVar(&f.twilioSID, "twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)")
	fs.StringVar(&f.twilioToken, "twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)")
	fs.StringVar(&f.twilioFrom, "twilio-from", config.TwilioFromNumber, "Twilio sender number (overrides $TWILIO_FROM_NUMBER)")
	fs.StringVar(&f.digestSchedule, "digest-schedule", config.DigestSchedule, "cron schedule for the weekly digest (overrides $DIGEST_SCHEDULE)")
	fs.StringVar(&recipients, "digest-recipients", config.DigestRecipients, "comma-separated digest recipients (overrides $DIGEST_RECIPIENTS)")
	fs.StringVar(&f.errorReply, "sms-error-reply", config.ErrorReply, "reply sent when an inbound SMS cannot be processed")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	fs.BoolVar(&f.genaiDebug, "genai-debug", config.GenAIDebug, "write OpenAI requests and responses to the state directory")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if err := scheduler.ValidateExpr(f.digestSchedule); err != nil {
		return Flags{}, err
	}
	f.digestRecipients = messaging.CanonicalizeRecipients(util.SplitList(recipients))
	if f.dbDSN == "" {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
	}
	return f, nil
}

// ensureDirectoriesExist creates the state directory for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(flags.dbDSN) == store.DSNTypePostgres {
		return nil
	}
	dir := filepath.Dir(flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", dir)
	return os.MkdirAll(dir, 0755)
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openaiKey))
	}
	if flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.openaiModel))
	}
	if flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true, flags.stateDir))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options. ai is nil
// when no OpenAI key is configured.
func buildAPIOptions(flags Flags, ai *genai.Client) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if flags.errorReply != "" {
		apiOpts = append(apiOpts, api.WithErrorReply(flags.errorReply))
	}
	if ai != nil {
		apiOpts = append(apiOpts, api.WithAI(ai), api.WithTranscriber(ai))
	}
	return apiOpts
}

// buildSender returns the Twilio client, or nil when Twilio is not configured.
func buildSender(flags Flags) (messaging.Sender, error) {
	if flags.twilioSID == "" && flags.twilioToken == "" && flags.twilioFrom == "" {
		return nil, nil
	}
	client, err := messaging.NewTwilioClient(
		messaging.WithAccountSID(flags.twilioSID),
		messaging.WithAuthToken(flags.twilioToken),
		messaging.WithFromNumber(flags.twilioFrom),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// run wires the store, API server, outbox sender and digest scheduler and
// blocks until ctx is cancelled.
// outboxSendFunc delivers claimed outbox messages through sender.
func outboxSendFunc(sender messaging.Sender) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		return sender.SendMessage(ctx, msg.Recipient, msg.Body)
	}
}

func run(ctx context.Context, flags Flags) error {
	if store.DetectDSNType(flags.dbDSN) == store.DSNTypeSQLite {
		lock, err := lockfile.Acquire(filepath.Dir(flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	var ai *genai.Client
	if flags.openaiKey != "" {
		ai, err = genai.NewClient(buildGenAIOptions(flags)...)
		if err != nil {
			return err
		}
	} else {
		slog.Info("No OpenAI key configured, digests use the static summary")
	}

	server := api.NewServer(st, buildAPIOptions(flags, ai)...)

	sender, err := buildSender(flags)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	sched := scheduler.NewScheduler()
	switch {
	case sender == nil:
		slog.Info("Twilio not configured, weekly digest delivery disabled")
	case len(flags.digestRecipients) == 0:
		slog.Info("No digest recipients configured, weekly digest delivery disabled")
	default:
		job := digest.NewJob(server.Digests(), st, flags.digestRecipients)
		if err := sched.AddJob(flags.digestSchedule, "weekly-digest", func(ctx context.Context) error {
			_, err := job.Run(ctx)
			return err
		}); err != nil {
			return err
		}

		outbox := store.NewOutboxSender(st, outboxSendFunc(sender), outboxPollInterval)
		if err := outbox.RecoverStaleMessages(ctx); err != nil {
			slog.Warn("Failed to recover stale outbox messages", "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outbox.Run(ctx)
		}()
		sched.Start()
	}

	runErr := server.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), api.DefaultShutdownTimeout)
	defer cancel()
	sched.Stop(stopCtx)
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
