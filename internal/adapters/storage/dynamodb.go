package storage

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"rsvp-api/internal/models"
)

const (
	attrEmail          = "email"
	attrSubmissionDate = "submissionDate"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the record store
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBRecordStore stores records in a DynamoDB table with partition key
// "email" and sort key "submissionDate"
type DynamoDBRecordStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBClient builds a DynamoDB client from the default credential
// chain. A non-empty endpoint overrides the service endpoint (DynamoDB Local).
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoDBRecordStore creates a record store backed by the given table
func NewDynamoDBRecordStore(client DynamoDBAPI, tableName string) (*DynamoDBRecordStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: dynamodb client is required", ErrInvalidStoreConfig)
	}
	if tableName == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidStoreConfig)
	}
	return &DynamoDBRecordStore{client: client, tableName: tableName}, nil
}

// Exists implements RecordStore.Exists
func (d *DynamoDBRecordStore) Exists(ctx context.Context, email string) (exists bool, err error) {
	ctx, span := startSpan(ctx, "dynamodb", OpExists, email)
	defer func() { endSpan(span, err) }()

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrEmail).Equal(expression.Value(email))).
		WithProjection(expression.NamesList(expression.Name(attrEmail))).
		Build()
	if err != nil {
		return false, NewStoreError(OpExists, email, err, false)
	}

	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return false, classifyDynamoError(OpExists, email, err)
	}

	return out.Count > 0 || len(out.Items) > 0, nil
}

// Put implements RecordStore.Put
func (d *DynamoDBRecordStore) Put(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "dynamodb", OpPut, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpPut, key, ErrInvalidKey, false)
	}

	item, err := marshalRecord(record)
	if err != nil {
		return NewStoreError(OpPut, key, err, false)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return classifyDynamoError(OpPut, key, err)
	}
	return nil
}

// GetLatest implements RecordStore.GetLatest
func (d *DynamoDBRecordStore) GetLatest(ctx context.Context, email string) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "dynamodb", OpGetLatest, email)
	defer func() { endSpan(span, err) }()

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrEmail).Equal(expression.Value(email))).
		Build()
	if err != nil {
		return nil, NewStoreError(OpGetLatest, email, err, false)
	}

	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, classifyDynamoError(OpGetLatest, email, err)
	}
	if len(out.Items) == 0 {
		return nil, NewStoreError(OpGetLatest, email, ErrRecordNotFound, false)
	}

	record, err = unmarshalRecord(out.Items[0])
	if err != nil {
		return nil, NewStoreError(OpGetLatest, email, err, false)
	}
	return record, nil
}

// Update implements RecordStore.Update. The write is conditional on the key
// already existing so that an update never creates a record.
func (d *DynamoDBRecordStore) Update(ctx context.Context, email, submissionDate string, patch models.RecordPatch) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "dynamodb", OpUpdate, email)
	defer func() { endSpan(span, err) }()

	key := recordKey(email, submissionDate)

	update := expression.
		Set(expression.Name("name"), expression.Value(patch.Name)).
		Set(expression.Name("age"), expression.Value(patch.Age)).
		Set(expression.Name("attendance"), expression.Value(patch.Attendance)).
		Set(expression.Name("totalGuests"), expression.Value(patch.TotalGuests)).
		Set(expression.Name("guests"), expression.Value(models.CopyGuests(patch.Guests))).
		Set(expression.Name("lastUpdatedDate"), expression.Value(patch.LastUpdatedDate))

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(attrEmail))).
		Build()
	if err != nil {
		return nil, NewStoreError(OpUpdate, key, err, false)
	}

	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			attrEmail:          &types.AttributeValueMemberS{Value: email},
			attrSubmissionDate: &types.AttributeValueMemberS{Value: submissionDate},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, NewStoreError(OpUpdate, key, ErrRecordNotFound, false)
		}
		return nil, classifyDynamoError(OpUpdate, key, err)
	}

	record, err = unmarshalRecord(out.Attributes)
	if err != nil {
		return nil, NewStoreError(OpUpdate, key, err, false)
	}
	return record, nil
}

// Scan implements RecordScanner using a paginated table scan
func (d *DynamoDBRecordStore) Scan(ctx context.Context, fn func(*models.Record) error) error {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return classifyDynamoError(OpScan, "", err)
		}
		for _, item := range page.Items {
			record, err := unmarshalRecord(item)
			if err != nil {
				return NewStoreError(OpScan, "", err, false)
			}
			if err := fn(record); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close implements RecordStore.Close
func (d *DynamoDBRecordStore) Close() error {
	return nil
}

func marshalRecord(record *models.Record) (map[string]types.AttributeValue, error) {
	clone := record.Clone()
	item, err := attributevalue.MarshalMap(clone)
	if err != nil {
		return nil, fmt.Errorf("error marshalling record for dynamo: %w", err)
	}
	return item, nil
}

func unmarshalRecord(item map[string]types.AttributeValue) (*models.Record, error) {
	record := &models.Record{}
	if err := attributevalue.UnmarshalMap(item, record); err != nil {
		return nil, fmt.Errorf("error unmarshalling dynamo item: %w", err)
	}
	if record.Guests == nil {
		record.Guests = []models.Guest{}
	}
	return record, nil
}

// classifyDynamoError maps SDK failures onto the store's sentinel errors
// while keeping the SDK error in the chain for diagnostics
func classifyDynamoError(op, key string, err error) *StoreError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(op, key, err)
	}

	var throughputErr *types.ProvisionedThroughputExceededException
	var limitErr *types.RequestLimitExceeded
	if errors.As(err, &throughputErr) || errors.As(err, &limitErr) {
		return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrThrottled, err), true)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException":
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrThrottled, err), true)
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrPermissionDenied, err), false)
		case "ResourceNotFoundException":
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), false)
		case "InternalServerError", "ServiceUnavailable":
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), true)
		}
		return NewStoreError(op, key, err, false)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrNetworkError, err), true)
	}

	return NewStoreError(op, key, err, false)
}
