package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheMichaelB/safe/internal/events"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps files as objects under a bucket prefix. PutObject replaces
// an object in one step, so writes are atomic without temp objects.
// Requests run under the store's context, so canceling it aborts an
// upload in flight.
type S3Store struct {
	ctx              context.Context
	client           S3API
	bucket           string
	prefix           string
	conflictStrategy ConflictStrategy
	maxFileSize      int64
	timeout          time.Duration
	logger           *events.Logger
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix, region string, logger *events.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store := NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger)
	store.SetContext(ctx)
	return store, nil
}

// NewS3StoreWithClient creates a store around an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger *events.Logger) *S3Store {
	return &S3Store{
		ctx:              context.Background(),
		client:           client,
		bucket:           bucket,
		prefix:           strings.Trim(prefix, "/"),
		conflictStrategy: ConflictOverwrite,
		maxFileSize:      defaultMaxFileSize,
		timeout:          30 * time.Second,
		logger: logger.WithFields(map[string]interface{}{
			"component": "s3_store",
			"bucket":    bucket,
		}),
	}
}

// SetConflictStrategy sets the conflict resolution strategy.
func (s *S3Store) SetConflictStrategy(strategy ConflictStrategy) {
	s.conflictStrategy = strategy
}

// SetContext sets the context requests run under.
func (s *S3Store) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// SetMaxFileSize sets the maximum object size.
func (s *S3Store) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// Location returns the s3:// URL of path.
func (s *S3Store) Location(filePath string) string {
	return "s3://" + s.bucket + "/" + s.buildKey(filePath)
}

// Write uploads data as one object.
func (s *S3Store) Write(filePath string, data []byte, mode os.FileMode) (string, error) {
	if int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, len(data), s.maxFileSize)
	}

	target, err := s.resolveConflict(filePath)
	if err != nil {
		return "", err
	}

	key := s.buildKey(target)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		Metadata: map[string]string{
			"mode": fmt.Sprintf("%o", mode),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"object": key,
		"size":   len(data),
	}).Debug("Wrote object")

	return target, nil
}

// WriteStream buffers the reader and uploads it as one object.
func (s *S3Store) WriteStream(filePath string, reader io.Reader, mode os.FileMode) (string, error) {
	limited := &io.LimitedReader{R: reader, N: s.maxFileSize + 1}

	data, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	if limited.N <= 0 {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxFileSize)
	}

	return s.Write(filePath, data, mode)
}

// Read downloads an object.
func (s *S3Store) Read(filePath string) ([]byte, error) {
	key := s.buildKey(filePath)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filePath)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer result.Body.Close()

	if size := aws.ToInt64(result.ContentLength); size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, size, s.maxFileSize)
	}

	return io.ReadAll(result.Body)
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *S3Store) Delete(filePath string) error {
	key := s.buildKey(filePath)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete object: %w", err)
	}

	return nil
}

// Exists checks if an object exists.
func (s *S3Store) Exists(filePath string) (bool, error) {
	_, err := s.head(filePath)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head object: %w", err)
	}
	return true, nil
}

// Stat returns object information.
func (s *S3Store) Stat(filePath string) (FileInfo, error) {
	result, err := s.head(filePath)
	if err != nil {
		if isNotFound(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, filePath)
		}
		return FileInfo{}, fmt.Errorf("s3 head object: %w", err)
	}

	return FileInfo{
		Path:    filePath,
		Size:    aws.ToInt64(result.ContentLength),
		Mode:    0644,
		ModTime: aws.ToTime(result.LastModified),
	}, nil
}

// ListDir returns the objects and common prefixes directly under dirPath.
func (s *S3Store) ListDir(dirPath string) ([]FileInfo, error) {
	prefix := s.buildKey(dirPath)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	var files []FileInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			files = append(files, FileInfo{
				Path:  path.Join(dirPath, name),
				Mode:  os.ModeDir | 0755,
				IsDir: true,
			})
		}

		for _, obj := range page.Contents {
			relPath := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			files = append(files, FileInfo{
				Path:    path.Join(dirPath, relPath),
				Size:    aws.ToInt64(obj.Size),
				Mode:    0644,
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return files, nil
}

func (s *S3Store) head(filePath string) (*s3.HeadObjectOutput, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(filePath)),
	})
}

func (s *S3Store) resolveConflict(filePath string) (string, error) {
	if s.conflictStrategy == ConflictOverwrite || s.conflictStrategy == "" {
		return filePath, nil
	}

	exists, err := s.Exists(filePath)
	if err != nil {
		return "", err
	}
	if !exists {
		return filePath, nil
	}

	switch s.conflictStrategy {
	case ConflictError:
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, filePath)
	case ConflictSkip:
		return "", fmt.Errorf("%w: %s", ErrSkipped, filePath)
	}

	dir, base := path.Split(filePath)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	timestamp := time.Now().Format("20060102-150405")

	candidate := dir + fmt.Sprintf("%s.conflict-%s%s", name, timestamp, ext)
	for i := 1; ; i++ {
		exists, err := s.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = dir + fmt.Sprintf("%s.conflict-%s-%d%s", name, timestamp, i, ext)
	}
}

func (s *S3Store) buildKey(filePath string) string {
	// Clean and normalize the path
	cleanPath := path.Clean("/" + strings.ReplaceAll(filePath, "\\", "/"))
	cleanPath = strings.TrimPrefix(cleanPath, "/")

	if s.prefix != "" {
		return path.Join(s.prefix, cleanPath)
	}
	return cleanPath
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
