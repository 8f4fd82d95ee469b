package services

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSService struct {
	client *storage.Client
}

func NewGCSService(ctx context.Context) (*GCSService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSService{client: client}, nil
}

// UploadFile streams content to bucket/objectName with the given content type.
func (s *GCSService) UploadFile(ctx context.Context, bucketName, objectName, contentType string, content io.Reader) error {
	writer := s.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (s *GCSService) DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	reader, err := s.client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (s *GCSService) ListFiles(ctx context.Context, bucketName, prefix string) ([]string, error) {
	var names []string
	it := s.client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (s *GCSService) Close() error {
	return s.client.Close()
}
