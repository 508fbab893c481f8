package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verify-nosql/internal/domain"
)

const pendingIndex = "status-submitted_at-index"

// VerificationRepo stores credential verification records.
// PK: verification_id. GSI status-submitted_at-index (status, submitted_at).
type VerificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVerificationRepo(client *dynamodb.Client, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

// Create inserts a new record and fails with ErrConflict if the id exists.
func (r *VerificationRepo) Create(ctx context.Context, v *domain.VerificationRecord) error {
	return r.put(ctx, v, "attribute_not_exists(verification_id)")
}

// WriteVerification replaces an existing record. Only the reviewer path calls it.
func (r *VerificationRepo) WriteVerification(ctx context.Context, v *domain.VerificationRecord) error {
	err := r.put(ctx, v, "attribute_exists(verification_id)")
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("verification %s: %w", v.VerificationID, domain.ErrNotFound)
	}
	return err
}

func (r *VerificationRepo) put(ctx context.Context, v *domain.VerificationRecord, cond string) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String(cond),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("verification %s: %w", v.VerificationID, domain.ErrConflict)
	}
	return err
}

// ReadVerification returns the latest committed state of the record.
// Reads are strongly consistent so a poll never misses a reviewer write.
func (r *VerificationRepo) ReadVerification(ctx context.Context, verificationID string) (*domain.VerificationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("verification_id", verificationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	var v domain.VerificationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ResolvePending moves a pending record to a terminal status. It fails with
// ErrConflict when the record is no longer pending, which is how an earlier
// reviewer decision beats an automated one.
func (r *VerificationRepo) ResolvePending(ctx context.Context, verificationID string, status domain.VerificationStatus, notes, resolvedBy string, at time.Time) (*domain.VerificationRecord, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		"status":      status,
		"notes":       notes,
		"resolved_by": resolvedBy,
		"resolved_at": at,
		"updated_at":  at,
	})
	if err != nil {
		return nil, err
	}
	cond, err := ue.withCondition("status", domain.VerificationPending)
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("verification_id", verificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("verification %s is no longer pending: %w", verificationID, domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	var v domain.VerificationRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListPending returns every pending record, oldest first.
func (r *VerificationRepo) ListPending(ctx context.Context) ([]domain.VerificationRecord, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(pendingIndex),
		KeyConditionExpression: aws.String("#s = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(domain.VerificationPending)},
		},
	})
	var records []domain.VerificationRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.VerificationRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
