package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-signup-session/internal/config"
	"github.com/stretchr/testify/assert"
)

type recordingAdmin struct {
	created []string
	ttl     map[string]string
}

func (a *recordingAdmin) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	a.created = append(a.created, aws.ToString(in.TableName))
	if aws.ToString(in.TableName) == "users" {
		return nil, &types.ResourceInUseException{Message: aws.String("exists")}
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (a *recordingAdmin) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	a.ttl[aws.ToString(in.TableName)] = aws.ToString(in.TimeToLiveSpecification.AttributeName)
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func TestBootstrap(t *testing.T) {
	admin := &recordingAdmin{ttl: map[string]string{}}
	Bootstrap(context.Background(), admin, config.DynamoTables{
		Users: "users", Sessions: "sessions", Registrations: "pending",
	})
	assert.Equal(t, []string{"users", "sessions", "pending"}, admin.created)
	assert.Equal(t, map[string]string{"sessions": "expires_at", "pending": "evict_at"}, admin.ttl)
}
