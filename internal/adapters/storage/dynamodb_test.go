package storage

import (
	"context"
	"errors"
	"net"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"rsvp-api/internal/models"
)

var setClause = regexp.MustCompile(`(#\w+)\s*=\s*(:\w+)`)

// fakeDynamo is an in-process stand-in for the DynamoDB API that understands
// the key condition and update expressions the record store generates
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue
	errs  map[string]error
	calls map[string]int
	last  map[string]interface{}
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		items: make(map[string]map[string]map[string]types.AttributeValue),
		errs:  make(map[string]error),
		calls: make(map[string]int),
		last:  make(map[string]interface{}),
	}
}

func (f *fakeDynamo) begin(ctx context.Context, op string, input interface{}) error {
	f.calls[op]++
	f.last[op] = input
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.errs[op]
}

func stringAttr(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "PutItem", in); err != nil {
		return nil, err
	}

	email := stringAttr(in.Item[attrEmail])
	sd := stringAttr(in.Item[attrSubmissionDate])
	if f.items[email] == nil {
		f.items[email] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[email][sd] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Query", in); err != nil {
		return nil, err
	}

	var email string
	for _, v := range in.ExpressionAttributeValues {
		email = stringAttr(v)
	}

	keys := make([]string, 0, len(f.items[email]))
	for sd := range f.items[email] {
		keys = append(keys, sd)
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	if in.Limit != nil && int(*in.Limit) < len(keys) {
		keys = keys[:*in.Limit]
	}

	out := &dynamodb.QueryOutput{}
	for _, sd := range keys {
		out.Items = append(out.Items, f.items[email][sd])
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "UpdateItem", in); err != nil {
		return nil, err
	}

	email := stringAttr(in.Key[attrEmail])
	sd := stringAttr(in.Key[attrSubmissionDate])
	item, ok := f.items[email][sd]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}

	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	for _, m := range setClause.FindAllStringSubmatch(aws.ToString(in.UpdateExpression), -1) {
		updated[in.ExpressionAttributeNames[m[1]]] = in.ExpressionAttributeValues[m[2]]
	}
	f.items[email][sd] = updated

	return &dynamodb.UpdateItemOutput{Attributes: updated}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Scan", in); err != nil {
		return nil, err
	}

	out := &dynamodb.ScanOutput{}
	for _, rows := range f.items {
		for _, item := range rows {
			out.Items = append(out.Items, item)
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func TestNewDynamoDBRecordStore_Validation(t *testing.T) {
	if _, err := NewDynamoDBRecordStore(nil, "rsvps"); !errors.Is(err, ErrInvalidStoreConfig) {
		t.Errorf("Expected ErrInvalidStoreConfig for nil client, got %v", err)
	}
	if _, err := NewDynamoDBRecordStore(newFakeDynamo(), ""); !errors.Is(err, ErrInvalidStoreConfig) {
		t.Errorf("Expected ErrInvalidStoreConfig for empty table, got %v", err)
	}
}

func TestDynamoDBRecordStore_Requests(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store, err := NewDynamoDBRecordStore(fake, "rsvps")
	if err != nil {
		t.Fatalf("NewDynamoDBRecordStore failed: %v", err)
	}

	t.Run("GetLatestQueriesNewestFirst", func(t *testing.T) {
		_, _ = store.GetLatest(ctx, "jane@example.com")

		in := fake.last["Query"].(*dynamodb.QueryInput)
		if aws.ToString(in.TableName) != "rsvps" {
			t.Errorf("Expected table rsvps, got %s", aws.ToString(in.TableName))
		}
		if in.ScanIndexForward == nil || *in.ScanIndexForward {
			t.Error("Expected descending sort key order")
		}
		if aws.ToInt32(in.Limit) != 1 {
			t.Errorf("Expected limit 1, got %d", aws.ToInt32(in.Limit))
		}
	})

	t.Run("ExistsProjectsKeyOnly", func(t *testing.T) {
		_, _ = store.Exists(ctx, "jane@example.com")

		in := fake.last["Query"].(*dynamodb.QueryInput)
		if in.ProjectionExpression == nil {
			t.Error("Expected a projection expression")
		}
		if aws.ToInt32(in.Limit) != 1 {
			t.Errorf("Expected limit 1, got %d", aws.ToInt32(in.Limit))
		}
	})

	t.Run("UpdateIsConditional", func(t *testing.T) {
		_, _ = store.Update(ctx, "jane@example.com", "2025-01-01T10:00:00.000Z", models.RecordPatch{Name: "x"})

		in := fake.last["UpdateItem"].(*dynamodb.UpdateItemInput)
		if in.ConditionExpression == nil {
			t.Error("Expected a condition expression")
		}
		if in.ReturnValues != types.ReturnValueAllNew {
			t.Errorf("Expected ALL_NEW, got %s", in.ReturnValues)
		}
		if _, ok := in.Key[attrSubmissionDate]; !ok {
			t.Error("Expected full key on update")
		}
	})
}

func TestDynamoDBRecordStore_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		target    error
		retryable bool
	}{
		{
			name:      "provisioned throughput",
			err:       &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")},
			target:    ErrThrottled,
			retryable: true,
		},
		{
			name:      "request limit",
			err:       &types.RequestLimitExceeded{Message: aws.String("limit")},
			target:    ErrThrottled,
			retryable: true,
		},
		{
			name:      "throttling api error",
			err:       &smithy.GenericAPIError{Code: "ThrottlingException", Message: "rate"},
			target:    ErrThrottled,
			retryable: true,
		},
		{
			name:   "access denied",
			err:    &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "nope"},
			target: ErrPermissionDenied,
		},
		{
			name:   "missing table",
			err:    &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no table"},
			target: ErrStoreUnavailable,
		},
		{
			name:      "network",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			target:    ErrNetworkError,
			retryable: true,
		},
		{
			name:   "deadline",
			err:    context.DeadlineExceeded,
			target: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeDynamo()
			fake.errs["Query"] = tt.err
			store, _ := NewDynamoDBRecordStore(fake, "rsvps")

			_, err := store.GetLatest(ctx, "jane@example.com")
			if !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v, got %v", tt.retryable, IsRetryable(err))
			}
			if IsNotFound(err) {
				t.Error("Store failures must not look like not found")
			}
		})
	}
}

func TestDynamoDBRecordStore_ScanPagesThroughTable(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store, _ := NewDynamoDBRecordStore(fake, "rsvps")

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if err := store.Put(ctx, sampleRecord(email, "2025-01-01T10:00:00.000Z")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	emails := map[string]bool{}
	if err := store.Scan(ctx, func(r *models.Record) error {
		emails[r.Email] = true
		return nil
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(emails) != 2 {
		t.Errorf("Expected 2 emails, got %v", emails)
	}
	if fake.calls["Scan"] != 1 {
		t.Errorf("Expected 1 Scan call, got %d", fake.calls["Scan"])
	}
}
