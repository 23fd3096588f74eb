package service

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	geocubeStorage "github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mholt/archiver"
	"google.golang.org/api/googleapi"
)

// ErrFileNotFound is an error returned by Import or Open
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

// isErrNotFound recognizes a missing file whatever the storage
// (geocube strategies convert gs missing objects to geocubeStorage.ErrFileNotFound)
func isErrNotFound(err error) bool {
	var epath *os.PathError
	var nsk *types.NoSuchKey
	var gapiErr *googleapi.Error
	return errors.Is(err, geocubeStorage.ErrFileNotFound) ||
		errors.Is(err, gstorage.ErrObjectNotExist) ||
		errors.As(err, &nsk) ||
		(errors.As(err, &gapiErr) && gapiErr.Code == 404) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// Storage is a service to store and retrieve files (tables, archives) from local, gs:// or s3:// uris
type Storage interface {
	// Import copies the file stored at uri to localFile
	// Raise ErrFileNotFound
	Import(ctx context.Context, uri, localFile string) error
	// Save persists localFile to uri, replacing any existing file
	Save(ctx context.Context, localFile, uri string) error
}

// S3Config configures the access to s3:// uris. Empty fields fall back to the aws default configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // e.g. a MinIO endpoint
	UsePathStyle    bool
}

// s3API is the subset of the s3 client used by the storage
type s3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// StorageStrategy implements Storage using geocube storage strategies for local and gs:// uris
// and the aws sdk for s3:// uris
type StorageStrategy struct {
	s3Config S3Config
	s3Client s3API
}

// NewStorageStrategy creates a new StorageStrategy. The s3 client is created on first use.
func NewStorageStrategy(s3Config S3Config) *StorageStrategy {
	return &StorageStrategy{s3Config: s3Config}
}

// IsLocal returns true if the uri is a path of the local file system
func IsLocal(uri string) bool {
	return !strings.Contains(uri, "://") || strings.HasPrefix(uri, "file://")
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// Import implements Storage
func (ss *StorageStrategy) Import(ctx context.Context, src, localFile string) error {
	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return fmt.Errorf("Import.MkdirAll: %w", err)
	}
	var err error
	switch {
	case IsLocal(src):
		err = copyFile(localPath(src), localFile)
	case strings.HasPrefix(src, "s3://"):
		err = ss.importS3(ctx, src, localFile)
	default:
		err = importGeocube(ctx, src, localFile)
	}
	if err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{src}
		}
		return fmt.Errorf("Import[%s].%w", src, err)
	}
	return nil
}

// Save implements Storage
func (ss *StorageStrategy) Save(ctx context.Context, localFile, dst string) error {
	var err error
	switch {
	case IsLocal(dst):
		if err = os.MkdirAll(filepath.Dir(localPath(dst)), 0755); err == nil {
			err = copyFile(localFile, localPath(dst))
		}
	case strings.HasPrefix(dst, "s3://"):
		err = ss.saveS3(ctx, localFile, dst)
	default:
		err = saveGeocube(ctx, localFile, dst)
	}
	if err != nil {
		return fmt.Errorf("Save[%s].%w", dst, err)
	}
	return nil
}

// Open returns a reader on the file stored at uri.
// Remote files are first imported in a temporary file, removed on Close.
func Open(ctx context.Context, storage Storage, src string) (io.ReadCloser, error) {
	if IsLocal(src) {
		f, err := os.Open(localPath(src))
		if err != nil {
			if isErrNotFound(err) {
				return nil, ErrFileNotFound{src}
			}
			return nil, fmt.Errorf("Open: %w", err)
		}
		return f, nil
	}
	tmpDir, err := os.MkdirTemp("", "table")
	if err != nil {
		return nil, fmt.Errorf("Open.MkdirTemp: %w", err)
	}
	localFile := filepath.Join(tmpDir, filepath.Base(src))
	if err := storage.Import(ctx, src, localFile); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("Open.%w", err)
	}
	f, err := os.Open(localFile)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("Open: %w", err)
	}
	return &tmpFile{File: f, cleanup: func() error { return os.RemoveAll(tmpDir) }}, nil
}

// Create returns a writer on a file that will replace the file stored at uri.
// Remote files are written in a temporary file and saved on Close.
func Create(ctx context.Context, storage Storage, dst string) (io.WriteCloser, error) {
	if IsLocal(dst) {
		p := localPath(dst)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("Create.MkdirAll: %w", err)
		}
		f, err := os.Create(p)
		if err != nil {
			return nil, fmt.Errorf("Create: %w", err)
		}
		return f, nil
	}
	tmpDir, err := os.MkdirTemp("", "table")
	if err != nil {
		return nil, fmt.Errorf("Create.MkdirTemp: %w", err)
	}
	localFile := filepath.Join(tmpDir, filepath.Base(dst))
	f, err := os.Create(localFile)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("Create: %w", err)
	}
	return &tmpFile{File: f, cleanup: func() error {
		defer os.RemoveAll(tmpDir)
		return storage.Save(ctx, localFile, dst)
	}}, nil
}

type tmpFile struct {
	*os.File
	cleanup func() error
	closed  bool
}

func (f *tmpFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	err := f.File.Close()
	if err != nil {
		return err
	}
	return f.cleanup()
}

// SaveDirectory zips the content of localDir and saves the archive to uri (that must end with .zip)
func SaveDirectory(ctx context.Context, storage Storage, localDir, dst string) error {
	if filepath.Ext(dst) != ".zip" {
		return fmt.Errorf("SaveDirectory: %s must be a zip file", dst)
	}
	files, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("SaveDirectory.ReadDir: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("SaveDirectory: %s is empty", localDir)
	}
	var sources []string
	for _, f := range files {
		sources = append(sources, filepath.Join(localDir, f.Name()))
	}

	tmpDir, err := os.MkdirTemp("", "archive")
	if err != nil {
		return fmt.Errorf("SaveDirectory.MkdirTemp: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	localZip := filepath.Join(tmpDir, filepath.Base(dst))
	zipper := archiver.NewZip()
	zipper.CompressionLevel = flate.BestSpeed
	if err := zipper.Archive(sources, localZip); err != nil {
		return fmt.Errorf("SaveDirectory.Archive: %w", err)
	}
	if err := storage.Save(ctx, localZip, dst); err != nil {
		return fmt.Errorf("SaveDirectory.%w", err)
	}
	return nil
}

func importGeocube(ctx context.Context, src, localFile string) error {
	u, err := uri.ParseUri(src)
	if err != nil {
		return fmt.Errorf("ParseUri: %w", err)
	}
	strategy, err := u.NewStorageStrategy(ctx)
	if err != nil {
		return fmt.Errorf("NewStorageStrategy: %w", err)
	}
	if err := strategy.DownloadToFile(ctx, src, localFile); err != nil {
		return fmt.Errorf("DownloadToFile: %w", err)
	}
	return nil
}

func saveGeocube(ctx context.Context, localFile, dst string) error {
	u, err := uri.ParseUri(dst)
	if err != nil {
		return fmt.Errorf("ParseUri: %w", err)
	}
	strategy, err := u.NewStorageStrategy(ctx)
	if err != nil {
		return fmt.Errorf("NewStorageStrategy: %w", err)
	}
	f, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("Open: %w", err)
	}
	defer f.Close()
	if err := strategy.UploadFile(ctx, dst, f); err != nil {
		return fmt.Errorf("UploadFile: %w", err)
	}
	return nil
}

func parseS3(s3uri string) (bucket, key string, err error) {
	u, err := neturl.Parse(s3uri)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri: %s", s3uri)
	}
	return bucket, key, nil
}

func (ss *StorageStrategy) client(ctx context.Context) (s3API, error) {
	if ss.s3Client != nil {
		return ss.s3Client, nil
	}
	var opts []func(*config.LoadOptions) error
	if ss.s3Config.Region != "" {
		opts = append(opts, config.WithRegion(ss.s3Config.Region))
	}
	if ss.s3Config.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ss.s3Config.AccessKeyID, ss.s3Config.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("LoadDefaultConfig: %w", err)
	}
	ss.s3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ss.s3Config.Endpoint != "" {
			o.BaseEndpoint = aws.String(ss.s3Config.Endpoint)
		}
		o.UsePathStyle = ss.s3Config.UsePathStyle
	})
	return ss.s3Client, nil
}

func (ss *StorageStrategy) importS3(ctx context.Context, src, localFile string) error {
	bucket, key, err := parseS3(src)
	if err != nil {
		return err
	}
	client, err := ss.client(ctx)
	if err != nil {
		return err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("GetObject: %w", err)
	}
	defer out.Body.Close()
	f, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return MakeTemporary(fmt.Errorf("Copy: %w", err))
	}
	return f.Close()
}

func (ss *StorageStrategy) saveS3(ctx context.Context, localFile, dst string) error {
	bucket, key, err := parseS3(dst)
	if err != nil {
		return err
	}
	client, err := ss.client(ctx)
	if err != nil {
		return err
	}
	f, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("Open: %w", err)
	}
	defer f.Close()
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
	})
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key), Body: f}); err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
