package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vantaloop/VantaLoop/internal/models"
)

const (
	skMeta = "META"

	// PhoneIndexName is the GSI keyed by phoneNumber (hash) and createdAt (range).
	PhoneIndexName = "phone-index"

	// Fixed-width so createdAt sorts lexically in the phone index.
	dynamoTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps SMS conversations and SMS submissions in DynamoDB. It
// covers only what the webhook needs; triage and the register live in SQL.
type DynamoStore struct {
	api                dynamodbAPI
	conversationsTable string
	submissionsTable   string
	now                func() time.Time
}

// NewDynamoStore creates a DynamoStore over the two tables.
func NewDynamoStore(api dynamodbAPI, conversationsTable, submissionsTable string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("store: dynamodb api must not be nil")
	}
	if strings.TrimSpace(conversationsTable) == "" {
		return nil, errors.New("store: conversations table name must not be empty")
	}
	if strings.TrimSpace(submissionsTable) == "" {
		return nil, errors.New("store: submissions table name must not be empty")
	}
	return &DynamoStore{
		api:                api,
		conversationsTable: conversationsTable,
		submissionsTable:   submissionsTable,
		now:                func() time.Time { return time.Now().UTC() },
	}, nil
}

func convPK(id string) string {
	return "CONV#" + id
}

// intakePK keys SMS submissions by conversation so a second write collides.
func intakePK(conversationID string) string {
	return "INTAKE#" + conversationID
}

func formatTime(t time.Time) string {
	return t.UTC().Format(dynamoTimeLayout)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// GetActiveConversation queries the phone index newest first and returns the
// first non-finalized conversation.
func (d *DynamoStore) GetActiveConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(d.conversationsTable),
		IndexName:              aws.String(PhoneIndexName),
		KeyConditionExpression: aws.String("phoneNumber = :phone"),
		FilterExpression:       aws.String("finalized = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":phone": &types.AttributeValueMemberS{Value: phoneNumber},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		ScanIndexForward: aws.Bool(false),
	}

	for {
		out, err := d.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("store: GetActiveConversation query: %w", err)
		}
		if len(out.Items) > 0 {
			conv, err := itemToConversation(out.Items[0])
			if err != nil {
				return nil, fmt.Errorf("store: GetActiveConversation decode: %w", err)
			}
			return conv, nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (d *DynamoStore) CreateConversation(ctx context.Context, phoneNumber string) (string, error) {
	id := newID()
	now := formatTime(d.now())
	data, err := encodePartialData(models.PartialData{})
	if err != nil {
		return "", err
	}
	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.conversationsTable),
		Item: map[string]types.AttributeValue{
			"PK":          &types.AttributeValueMemberS{Value: convPK(id)},
			"SK":          &types.AttributeValueMemberS{Value: skMeta},
			"id":          &types.AttributeValueMemberS{Value: id},
			"phoneNumber": &types.AttributeValueMemberS{Value: phoneNumber},
			"currentStep": &types.AttributeValueMemberS{Value: string(models.StepAwaitingName)},
			"partialData": &types.AttributeValueMemberS{Value: data},
			"finalized":   &types.AttributeValueMemberBOOL{Value: false},
			"createdAt":   &types.AttributeValueMemberS{Value: now},
			"updatedAt":   &types.AttributeValueMemberS{Value: now},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return "", fmt.Errorf("store: CreateConversation: %w", err)
	}
	slog.Debug("DynamoStore.CreateConversation succeeded", "id", id)
	return id, nil
}

// UpdateConversation writes step and data unless the conversation was finalized.
func (d *DynamoStore) UpdateConversation(ctx context.Context, id string, step models.Step, data models.PartialData) error {
	encoded, err := encodePartialData(data)
	if err != nil {
		return err
	}
	_, err = d.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.conversationsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:    aws.String("SET currentStep = :step, partialData = :data, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK) AND finalized = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":step":  &types.AttributeValueMemberS{Value: string(step)},
			":data":  &types.AttributeValueMemberS{Value: encoded},
			":now":   &types.AttributeValueMemberS{Value: formatTime(d.now())},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			slog.Debug("DynamoStore.UpdateConversation: skipped finalized or missing conversation", "id", id)
			return nil
		}
		return fmt.Errorf("store: UpdateConversation: %w", err)
	}
	return nil
}

func (d *DynamoStore) FinalizeConversation(ctx context.Context, id string) error {
	_, err := d.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.conversationsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:    aws.String("SET finalized = :true, currentStep = :complete, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":     &types.AttributeValueMemberBOOL{Value: true},
			":complete": &types.AttributeValueMemberS{Value: string(models.StepComplete)},
			":now":      &types.AttributeValueMemberS{Value: formatTime(d.now())},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: FinalizeConversation: %w", err)
	}
	return nil
}

// CreateSubmission writes an SMS submission keyed by its conversation. A
// conditional-put collision returns the id already stored.
func (d *DynamoStore) CreateSubmission(ctx context.Context, sub models.IntakeSubmission) (string, error) {
	if sub.ConversationID == "" {
		return "", errors.New("store: CreateSubmission: conversation id is required")
	}
	if sub.ID == "" {
		sub.ID = newID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = d.now()
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}
	if sub.Status == "" {
		sub.Status = models.IntakeStatusNew
	}
	if sub.WeekID == "" {
		sub.WeekID = models.WeekID(sub.CreatedAt)
	}

	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.submissionsTable),
		Item:                submissionItem(sub),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return sub.ID, nil
	}
	if !isConditionFailed(err) {
		return "", fmt.Errorf("store: CreateSubmission: %w", err)
	}

	out, getErr := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.submissionsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: intakePK(sub.ConversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if getErr != nil {
		return "", fmt.Errorf("store: CreateSubmission lookup existing: %w", getErr)
	}
	if out == nil || len(out.Item) == 0 {
		return "", fmt.Errorf("store: CreateSubmission: conflicting submission for %s vanished", sub.ConversationID)
	}
	existing, err := strAttr(out.Item, "id")
	if err != nil {
		return "", fmt.Errorf("store: CreateSubmission decode existing: %w", err)
	}
	slog.Info("DynamoStore.CreateSubmission: submission already exists for conversation", "conversationID", sub.ConversationID, "id", existing)
	return existing, nil
}

func submissionItem(sub models.IntakeSubmission) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: intakePK(sub.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"id":             &types.AttributeValueMemberS{Value: sub.ID},
		"conversationId": &types.AttributeValueMemberS{Value: sub.ConversationID},
		"submitterName":  &types.AttributeValueMemberS{Value: sub.SubmitterName},
		"channel":        &types.AttributeValueMemberS{Value: string(sub.Channel)},
		"phoneNumber":    &types.AttributeValueMemberS{Value: sub.PhoneNumber},
		"feedbackType":   &types.AttributeValueMemberS{Value: string(sub.FeedbackType)},
		"subject":        &types.AttributeValueMemberS{Value: sub.Subject},
		"status":         &types.AttributeValueMemberS{Value: string(sub.Status)},
		"weekId":         &types.AttributeValueMemberS{Value: sub.WeekID},
		"createdAt":      &types.AttributeValueMemberS{Value: formatTime(sub.CreatedAt)},
		"updatedAt":      &types.AttributeValueMemberS{Value: formatTime(sub.UpdatedAt)},
	}
	optional := map[string]*string{
		"goalOfShare":    sub.GoalOfShare,
		"whatsWorking":   sub.WhatsWorking,
		"questionsRisks": sub.QuestionsRisks,
		"suggestions":    sub.Suggestions,
		"decisionNeeded": sub.DecisionNeeded,
	}
	for key, v := range optional {
		if v != nil {
			item[key] = &types.AttributeValueMemberS{Value: *v}
		}
	}
	return item
}

func itemToConversation(item map[string]types.AttributeValue) (*models.Conversation, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return nil, err
	}
	phone, err := strAttr(item, "phoneNumber")
	if err != nil {
		return nil, err
	}
	step, _ := strAttr(item, "currentStep") // unknown steps restart the flow
	rawData, _ := strAttr(item, "partialData")
	conv := &models.Conversation{
		ID:          id,
		PhoneNumber: phone,
		CurrentStep: models.Step(step),
	}
	applyPartialData(conv, rawData)
	if b, ok := item["finalized"].(*types.AttributeValueMemberBOOL); ok {
		conv.Finalized = b.Value
	}
	if s, err := strAttr(item, "createdAt"); err == nil {
		conv.CreatedAt, _ = time.Parse(dynamoTimeLayout, s)
	}
	if s, err := strAttr(item, "updatedAt"); err == nil {
		conv.UpdatedAt, _ = time.Parse(dynamoTimeLayout, s)
	}
	return conv, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("store: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("store: attribute %q is not a string", key)
	}
	return s.Value, nil
}
