package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// FetchFromGCS downloads a statement file from a "gs://bucket/object" URI.
// Tenants drop exported bank files into a bucket and reference them at
// import time.
func FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectName, err := splitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from gcs: create storage client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from gcs: open object reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("fetch from gcs: read object: %w", err)
	}

	return data, nil
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("fetch from gcs: URI %q must start with gs://: %w", uri, domain.ErrValidation)
	}

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("fetch from gcs: URI %q missing bucket or object: %w", uri, domain.ErrValidation)
	}
	return parts[0], parts[1], nil
}
