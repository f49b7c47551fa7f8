package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/vantaloop/VantaLoop/internal/flow"
	"github.com/vantaloop/VantaLoop/internal/lambdafn"
	"github.com/vantaloop/VantaLoop/internal/paramstore"
	"github.com/vantaloop/VantaLoop/internal/store"
	"github.com/vantaloop/VantaLoop/internal/util"
	"github.com/vantaloop/VantaLoop/internal/webhook"
)

// Store backends selectable with STORE_BACKEND.
const (
	backendDynamoDB = "dynamodb"
	backendPostgres = "postgres"
)

// intakeStore is what the webhook needs from a backend.
type intakeStore interface {
	flow.ConversationStore
	flow.SubmissionSink
}

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: util.ParseLogLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	st, err := openStore(ctx, cfg, util.GetEnvDefault("STORE_BACKEND", backendDynamoDB))
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	var adapterOpts []webhook.Option
	if reply := os.Getenv("SMS_ERROR_REPLY"); reply != "" {
		adapterOpts = append(adapterOpts, webhook.WithErrorReply(reply))
	}
	adapter := webhook.NewAdapter(flow.NewEngine(st, st), adapterOpts...)

	h, err := lambdafn.NewHandler(adapter)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// openStore builds the conversation store for backend. Postgres reads its
// connection string from Parameter Store so the secret stays out of the
// function configuration.
func openStore(ctx context.Context, cfg aws.Config, backend string) (intakeStore, error) {
	switch strings.ToLower(backend) {
	case backendDynamoDB:
		return store.NewDynamoStore(
			awsdynamodb.NewFromConfig(cfg),
			mustEnv("CONVERSATIONS_TABLE"),
			mustEnv("SUBMISSIONS_TABLE"),
		)
	case backendPostgres:
		params, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		dsn, err := params.GetParameter(ctx, mustEnv("DATABASE_URL_PARAM"))
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
