package cache

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// NewDynamoClient creates a new DynamoDB client based on environment.
// DYNAMODB_ENDPOINT points at DynamoDB Local during development.
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	if endpoint := os.Getenv("DYNAMODB_ENDPOINT"); endpoint != "" {
		log.Debug().Str("endpoint", endpoint).Msg("Using local DynamoDB endpoint")
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("local"),
			config.WithClientLogMode(aws.LogRetries),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
		)
		if err != nil {
			return nil, err
		}

		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

// NewS3Client creates an S3 client. S3_ENDPOINT enables path-style access
// against a local S3-compatible server.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		log.Debug().Str("endpoint", endpoint).Msg("Using local S3 endpoint")
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
		)
		if err != nil {
			return nil, err
		}

		return s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg), nil
}
