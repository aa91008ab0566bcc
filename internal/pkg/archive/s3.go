// Package archive exports ledger history to object storage. Ledger rows are
// never deleted, but audit requires statements that survive independently of
// the database, so closed accounts keep a retrievable trail.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
)

// Config holds S3 (or S3-compatible) connection settings.
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
	// Endpoint overrides the AWS endpoint for S3-compatible stores; empty
	// means standard AWS S3.
	Endpoint string
}

// Exporter writes ledger statements to a bucket.
type Exporter struct {
	client *s3.Client
	bucket string
}

func NewExporter(cfg Config) (*Exporter, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.AccessKeySecret,
			"",
		)),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Exporter{client: client, bucket: cfg.Bucket}, nil
}

type statement struct {
	AccountID    uuid.UUID            `json:"account_id"`
	ExportedAt   time.Time            `json:"exported_at"`
	Balance      int                  `json:"balance"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// Export uploads the full transaction history for an account and returns the
// object key.
func (e *Exporter) Export(ctx context.Context, accountID uuid.UUID, transactions []ledger.Transaction) (string, error) {
	balance := 0
	for _, t := range transactions {
		balance += t.Points
	}

	doc := statement{
		AccountID:    accountID,
		ExportedAt:   time.Now().UTC(),
		Balance:      balance,
		Transactions: transactions,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode statement: %w", err)
	}

	key := fmt.Sprintf("ledger-exports/%s/%s.json", accountID, doc.ExportedAt.Format("20060102T150405Z"))
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload statement: %w", err)
	}

	return key, nil
}
