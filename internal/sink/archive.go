package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
	"github.com/galois26/transient-correlator/internal/util"
)

// objectPutter is the part of *s3.Client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type archiveSink struct {
	cfg    config.ArchiveConfig
	client objectPutter
}

// NewArchive stores every payload as gzip-compressed JSON in S3.
// SDK retries are off; Push retries with its own backoff.
func NewArchive(ctx context.Context, cfg config.ArchiveConfig) (Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return newArchive(cfg, client), nil
}

func newArchive(cfg config.ArchiveConfig, client objectPutter) *archiveSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &archiveSink{cfg: cfg, client: client}
}

func (a *archiveSink) Name() string { return "archive" }

// objectKey is <prefix>/YYYY/MM/DD/<run_id>.json.gz in the run's UTC date.
func (a *archiveSink) objectKey(p *model.Payload) string {
	return path.Join(a.cfg.Prefix, p.GeneratedAt.UTC().Format("2006/01/02"), p.RunID+".json.gz")
}

func (a *archiveSink) Push(ctx context.Context, p *model.Payload) error {
	body, err := gzipJSON(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	key := a.objectKey(p)
	return util.Retry(ctx, a.cfg.Retries, 200*time.Millisecond, 2*time.Second, func() error {
		return a.putObject(ctx, key, body)
	})
}

// putObject performs a single PutObject bounded by the configured timeout.
// The reader is rebuilt per attempt.
func (a *archiveSink) putObject(ctx context.Context, key string, body []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	_, err := a.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:          aws.String(a.cfg.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}

func gzipJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
