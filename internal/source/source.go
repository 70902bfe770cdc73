// Package source loads material and proof files from local paths, http(s)
// URLs, s3://bucket/key or gs://bucket/object references.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/local/copyshop/internal/config"
	"github.com/local/copyshop/internal/filetype"
	"github.com/local/copyshop/internal/order"
)

// ErrTooLarge is returned when a file exceeds the configured download limit.
var ErrTooLarge = errors.New("file exceeds download limit")

// S3API is the subset of the S3 client used for fetching objects.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Loader resolves a file reference into an in-memory order.File.
type Loader struct {
	cfg        config.SourceConfig
	detector   *filetype.Detector
	httpClient *http.Client
	maxBytes   int64

	s3Once sync.Once
	s3     S3API
	s3Err  error

	gcsOnce sync.Once
	gcs     *storage.Client
	gcsErr  error
}

// Option customises a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the client used for http(s) references.
func WithHTTPClient(c *http.Client) Option { return func(l *Loader) { l.httpClient = c } }

// WithS3 injects a ready S3 client instead of building one from the AWS config chain.
func WithS3(c S3API) Option {
	return func(l *Loader) {
		l.s3 = c
		l.s3Once.Do(func() {})
	}
}

// New creates a Loader.
func New(cfg config.SourceConfig, opts ...Option) *Loader {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	l := &Loader{
		cfg:        cfg,
		detector:   filetype.New(),
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.MaxDownloadMB > 0 {
		l.maxBytes = int64(cfg.MaxDownloadMB) << 20
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load fetches ref. Supported forms:
// - s3://bucket/key
// - gs://bucket/object
// - http(s)://...
// - file://path or a plain filesystem path
func (l *Loader) Load(ctx context.Context, ref string) (*order.File, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty file reference")
	}

	var (
		f   *order.File
		err error
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		f, err = l.loadS3(ctx, ref)
	case strings.HasPrefix(ref, "gs://"):
		f, err = l.loadGCS(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		f, err = l.loadHTTP(ctx, ref)
	default:
		f, err = l.loadLocal(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return nil, err
	}
	log.Debug().Str("ref", ref).Str("name", f.Name).Str("content_type", f.ContentType).Int64("size", f.Size).Msg("file loaded")
	return f, nil
}

func (l *Loader) loadLocal(p string) (*order.File, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if l.maxBytes > 0 && fi.Size() > l.maxBytes {
		return nil, fmt.Errorf("%s: %w", p, ErrTooLarge)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	name := filepath.Base(p)
	return l.file(name, "", data), nil
}

func (l *Loader) loadHTTP(ctx context.Context, rawURL string) (*order.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: http %d", rawURL, resp.StatusCode)
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}

	name := "download"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	return l.file(name, resp.Header.Get("Content-Type"), data), nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	if l.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (l *Loader) s3Client(ctx context.Context) (S3API, error) {
	l.s3Once.Do(func() {
		var opts []func(*awscfg.LoadOptions) error
		if l.cfg.AWSRegion != "" {
			opts = append(opts, awscfg.WithRegion(l.cfg.AWSRegion))
		}
		if l.cfg.AWSAccessKey != "" && l.cfg.AWSSecretKey != "" {
			opts = append(opts, awscfg.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(l.cfg.AWSAccessKey, l.cfg.AWSSecretKey, "")))
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			l.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		l.s3 = s3.NewFromConfig(cfg)
	})
	return l.s3, l.s3Err
}

func (l *Loader) loadS3(ctx context.Context, ref string) (*order.File, error) {
	bucket, key, err := parseBucketURL(ref, "s3://")
	if err != nil {
		return nil, err
	}
	cli, err := l.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	head, err := cli.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to stat s3 object: %w", err)
	}
	size := aws.ToInt64(head.ContentLength)
	if l.maxBytes > 0 && size > l.maxBytes {
		return nil, fmt.Errorf("%s: %w", ref, ErrTooLarge)
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	dl := manager.NewDownloader(cli, func(d *manager.Downloader) { d.Concurrency = 1 })
	n, err := dl.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	data := buf.Bytes()[:n]

	name := path.Base(key)
	for _, k := range []string{"name", "Name"} {
		if v, ok := head.Metadata[k]; ok && v != "" {
			name = v
			break
		}
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 object")
	return l.file(name, aws.ToString(head.ContentType), data), nil
}

// file builds an order.File, trusting the declared type unless it is missing
// or generic.
func (l *Loader) file(name, declared string, data []byte) *order.File {
	ct := filetype.Normalize(declared)
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		ct = l.detector.Detect(name, data).MIMEType
	}
	return &order.File{Name: name, ContentType: ct, Size: int64(len(data)), Data: data}
}

// Close releases cloud clients opened by the loader.
func (l *Loader) Close() error {
	if l.gcs != nil {
		return l.gcs.Close()
	}
	return nil
}

func (l *Loader) gcsClient(ctx context.Context) (*storage.Client, error) {
	l.gcsOnce.Do(func() {
		var opts []option.ClientOption
		if l.cfg.GCSEndpoint != "" {
			// emulators such as fake-gcs-server take no credentials
			opts = append(opts, option.WithEndpoint(l.cfg.GCSEndpoint), option.WithoutAuthentication())
		}
		l.gcs, l.gcsErr = storage.NewClient(ctx, opts...)
		if l.gcsErr != nil {
			l.gcsErr = fmt.Errorf("failed to create storage client: %w", l.gcsErr)
		}
	})
	return l.gcs, l.gcsErr
}

func (l *Loader) loadGCS(ctx context.Context, ref string) (*order.File, error) {
	bucket, object, err := parseBucketURL(ref, "gs://")
	if err != nil {
		return nil, err
	}
	cli, err := l.gcsClient(ctx)
	if err != nil {
		return nil, err
	}

	r, err := cli.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gcs object: %w", err)
	}
	defer r.Close()
	if l.maxBytes > 0 && r.Attrs.Size > l.maxBytes {
		return nil, fmt.Errorf("%s: %w", ref, ErrTooLarge)
	}

	data, err := l.readLimited(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcs object: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("object", object).Int("bytes", len(data)).Msg("downloaded gcs object")
	return l.file(path.Base(object), r.Attrs.ContentType, data), nil
}

// parseBucketURL splits scheme://bucket/key.
func parseBucketURL(ref, scheme string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, scheme)
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid %s url: %s", strings.TrimSuffix(scheme, "://"), ref)
	}
	return p[:slash], p[slash+1:], nil
}
