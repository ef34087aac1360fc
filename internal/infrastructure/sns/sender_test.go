package sns

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-signup-session/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	return &sns.PublishOutput{}, args.Error(0)
}

func TestCodeDeliverer_Publishes(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:topic" &&
			aws.ToString(in.Message) == "123456" &&
			aws.ToString(in.MessageAttributes["email"].StringValue) == "a@b.com"
	})).Return(nil)

	d := NewCodeDelivererWithClient(p, "arn:topic")
	require.NoError(t, d.Deliver(context.Background(), "a@b.com", "123456"))
	p.AssertExpectations(t)
}

func TestNewCodeDeliverer_RequiresTopic(t *testing.T) {
	_, err := NewCodeDeliverer(&config.Config{})
	assert.Error(t, err)
}
