package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-signup-session/internal/config"
)

// Publisher is the subset of the SNS client the deliverer uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// CodeDeliverer publishes one-time codes to an SNS topic; an email
// subscriber downstream renders and sends them. The recipient rides as a
// message attribute so subscription filter policies can route on it.
type CodeDeliverer struct {
	client   Publisher
	topicARN string
}

func NewCodeDeliverer(cfg *config.Config) (*CodeDeliverer, error) {
	if cfg.SNSTopicARN == "" {
		return nil, fmt.Errorf("SNS_TOPIC_ARN is required for sns delivery")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	opts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return NewCodeDelivererWithClient(sns.NewFromConfig(awsCfg, opts...), cfg.SNSTopicARN), nil
}

func NewCodeDelivererWithClient(client Publisher, topicARN string) *CodeDeliverer {
	return &CodeDeliverer{client: client, topicARN: topicARN}
}

func (d *CodeDeliverer) Deliver(ctx context.Context, email, code string) error {
	_, err := d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(d.topicARN),
		Subject:  aws.String("verification-code"),
		Message:  aws.String(code),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"email": {DataType: aws.String("String"), StringValue: aws.String(email)},
			"kind":  {DataType: aws.String("String"), StringValue: aws.String("registration")},
		},
	})
	return err
}
