package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-signup-session/internal/domain"
)

// maxUpdateRetries bounds optimistic-concurrency retries in Update.
const maxUpdateRetries = 5

// RegistrationRepo stores pending registrations keyed by normalized email.
// Writes after a read are conditioned on the revision that was read, so a
// read-check-mutate cycle commits atomically or is retried.
type RegistrationRepo struct {
	client    API
	tableName string
}

func NewRegistrationRepo(client API, tableName string) *RegistrationRepo {
	return &RegistrationRepo{client: client, tableName: tableName}
}

// Put replaces the record for p.Email. The stored revision is incremented in
// the same write, so an Update holding the replaced record fails its revision
// check and re-reads.
func (r *RegistrationRepo) Put(ctx context.Context, p *domain.PendingRegistration) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	delete(item, fieldEmail)
	delete(item, fieldRevision)

	ue := setExpr(item)
	ue.Expr += ", #r = if_not_exists(#r, :zero) + :one"
	ue.Names["#r"] = fieldRevision
	ue.Values[":zero"] = revisionValue(0)
	ue.Values[":one"] = revisionValue(1)

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, p.Email),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("put registration: %w", err)
	}
	if n, ok := out.Attributes[fieldRevision].(*types.AttributeValueMemberN); ok {
		p.Revision, _ = strconv.ParseInt(n.Value, 10, 64)
	}
	return nil
}

func (r *RegistrationRepo) Get(ctx context.Context, email string) (*domain.PendingRegistration, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("pending registration not found: %w", domain.ErrNotFound)
	}
	var p domain.PendingRegistration
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RegistrationRepo) Update(ctx context.Context, email string, fn domain.MutateFunc) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		cur, err := r.Get(ctx, email)
		if err != nil {
			return err
		}
		rev := cur.Revision
		m, fnErr := fn(cur)
		switch m {
		case domain.MutationKeep:
			return fnErr
		case domain.MutationSave:
			cur.Revision = rev + 1
			err = r.putIfRevision(ctx, cur, rev)
		case domain.MutationDelete:
			err = r.deleteIfRevision(ctx, email, rev)
		}
		if err == nil {
			return fnErr
		}
		if !isConditionFailed(err) {
			return err
		}
		slog.Debug("pending registration changed concurrently, retrying", "email", email, "attempt", attempt+1)
	}
	return fmt.Errorf("pending registration contended: %w", domain.ErrUpstream)
}

// Restore puts back a record claimed by a failed confirmation. The revision
// moves past the claimed one so stale readers of it re-read.
func (r *RegistrationRepo) Restore(ctx context.Context, p *domain.PendingRegistration) error {
	restored := *p
	restored.Revision++
	item, err := attributevalue.MarshalMap(&restored)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(email)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("pending registration exists: %w", domain.ErrConflict)
	}
	return err
}

// Sweep deletes records whose evict_at has passed. The table TTL on evict_at
// eventually does the same; the sweep makes eviction prompt.
func (r *RegistrationRepo) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
	n := 0
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          aws.String("#e <= :now"),
			ProjectionExpression:      aws.String("#k"),
			ExpressionAttributeNames:  map[string]string{"#e": fieldEvictAt, "#k": fieldEmail},
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": cutoff},
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return n, err
		}
		for _, item := range out.Items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(r.tableName),
				Key:                       map[string]types.AttributeValue{fieldEmail: item[fieldEmail]},
				ConditionExpression:       aws.String("#e <= :now"),
				ExpressionAttributeNames:  map[string]string{"#e": fieldEvictAt},
				ExpressionAttributeValues: map[string]types.AttributeValue{":now": cutoff},
			})
			if err != nil {
				// Confirmed or replaced since the scan.
				if isConditionFailed(err) {
					continue
				}
				return n, err
			}
			n++
		}
		if len(out.LastEvaluatedKey) == 0 {
			return n, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (r *RegistrationRepo) putIfRevision(ctx context.Context, p *domain.PendingRegistration, rev int64) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       aws.String("#r = :rev"),
		ExpressionAttributeNames:  map[string]string{"#r": fieldRevision},
		ExpressionAttributeValues: map[string]types.AttributeValue{":rev": revisionValue(rev)},
	})
	return err
}

func (r *RegistrationRepo) deleteIfRevision(ctx context.Context, email string, rev int64) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, email),
		ConditionExpression:       aws.String("#r = :rev"),
		ExpressionAttributeNames:  map[string]string{"#r": fieldRevision},
		ExpressionAttributeValues: map[string]types.AttributeValue{":rev": revisionValue(rev)},
	})
	return err
}

func revisionValue(rev int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(rev, 10)}
}
