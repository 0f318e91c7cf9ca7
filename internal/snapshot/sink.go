package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// Sink receives a rendered CSV snapshot of one entity's roster.
type Sink interface {
	Put(ctx context.Context, entity string, at time.Time, body []byte) error
}

// FileSink keeps the latest snapshot per entity at <dir>/<entity>.csv.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Put replaces the entity's file atomically.
func (s *FileSink) Put(_ context.Context, entity string, _ time.Time, body []byte) error {
	tmp, err := os.CreateTemp(s.dir, entity+"-*.csv.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, entity+".csv"))
}

// S3Config holds configuration for an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Sink archives every snapshot under <entity>/<timestamp>-<uuid>.csv.
type S3Sink struct {
	client *s3.S3
	bucket string
}

// NewS3Sink creates a session for cfg. An empty Endpoint targets AWS itself.
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}
	return &S3Sink{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// Put uploads body as a new object.
func (s *S3Sink) Put(ctx context.Context, entity string, at time.Time, body []byte) error {
	key := ObjectKey(entity, at)
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// ObjectKey names an archived snapshot.
func ObjectKey(entity string, at time.Time) string {
	return fmt.Sprintf("%s/%s-%s.csv", entity, at.UTC().Format("20060102T150405Z"), uuid.NewString())
}

// Sinks builds the configured sinks: a local directory when dir is set and a
// bucket when s3.Bucket is set. Neither is required.
func Sinks(dir string, s3cfg S3Config) ([]Sink, error) {
	var sinks []Sink
	if dir != "" {
		fs, err := NewFileSink(dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if s3cfg.Bucket != "" {
		s, err := NewS3Sink(s3cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
