// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package oais

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"migration/app/config"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Replica keeps an off-site copy of the archival package.
type Replica interface {
	// Put uploads the file at path under key unless the replica already holds the same content.
	// It reports whether it uploaded.
	Put(ctx context.Context, key, path string) (bool, error)
}

type S3Replica struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Replica(ctx context.Context, c config.ReplicaConfig) (*S3Replica, error) {
	awsConfig, err := cfg.LoadDefaultConfig(ctx,
		cfg.WithRegion(c.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if c.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.AWSEndpoint)
		}
		o.UsePathStyle = c.AWSPathstyle
	})
	uploader := manager.NewUploader(client)
	uploader.Concurrency = 2
	return &S3Replica{client: client, uploader: uploader, bucket: c.AWSBucket, prefix: c.Prefix}, nil
}

// md5Metadata is the user metadata key holding the hex MD5 of the replicated file.
const md5Metadata = "md5"

// Put compares the MD5 stored with the object to the local file and uploads on a mismatch
// or when the object is missing.
func (r *S3Replica) Put(ctx context.Context, key, path string) (bool, error) {
	key = r.prefix + key
	sum, err := FileHash(path, Md5)
	if err != nil {
		return false, err
	}
	local := hex.EncodeToString(sum)
	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err == nil && head.Metadata[md5Metadata] == local {
		return false, nil
	}
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("checking replica of %v: %w", key, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:      aws.String(key),
		Body:     f,
		Metadata: map[string]string{md5Metadata: local},
	})
	if err != nil {
		return false, fmt.Errorf("replicating %v: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
