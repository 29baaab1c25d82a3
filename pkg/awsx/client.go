package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/linyucheng/seatbook-backend/pkg/config"
)

// Clients bundles the AWS service clients used by the s3/dynamodb backends.
type Clients struct {
	S3     *s3.Client
	Dynamo *dynamodb.Client
}

// New resolves AWS credentials/region from the default chain. A custom
// endpoint (localstack, minio) can be pinned through config.
func New(ctx context.Context, cfg config.AWSConfig) (*Clients, error) {
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(base, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	dynamoClient := dynamodb.NewFromConfig(base, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Clients{S3: s3Client, Dynamo: dynamoClient}, nil
}
