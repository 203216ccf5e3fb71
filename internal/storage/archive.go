// Package storage archives exported plan PDFs in S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/pageza/platecoach/backend/config"
)

// LinkExpiry is how long an archive download link stays valid.
const LinkExpiry = 15 * time.Minute

// ObjectPutter uploads objects. Satisfied by *s3.Client.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner signs download requests. Satisfied by *s3.PresignClient.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PDFArchive stores rendered plans under plans/<tenant>/<plan>.pdf.
type PDFArchive struct {
	client  ObjectPutter
	presign Presigner
	bucket  string
}

// NewPDFArchive wraps an S3 configuration
func NewPDFArchive(cfg *config.S3Config) *PDFArchive {
	return &PDFArchive{
		client:  cfg.Client,
		presign: s3.NewPresignClient(cfg.Client),
		bucket:  cfg.BucketName,
	}
}

// ObjectKey returns the archive key of a plan's PDF.
func ObjectKey(tenantID, planID uuid.UUID) string {
	return fmt.Sprintf("plans/%s/%s.pdf", tenantID, planID)
}

// Put uploads pdf, replacing any earlier export, and returns a presigned download URL.
func (a *PDFArchive) Put(ctx context.Context, tenantID, planID uuid.UUID, pdf []byte) (string, error) {
	key := ObjectKey(tenantID, planID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pdf),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(LinkExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}
