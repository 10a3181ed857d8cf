// Package storage keeps execution archives in Cloud Storage, or in memory for
// tests and local runs.
package storage

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/utils/safe"
	"google.golang.org/api/option"
)

type Client struct {
	client *storage.Client
	bucket string
}

var _ interfaces.StorageClient = &Client{}

func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Client, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.T(errs.TagExternal))
	}

	return &Client{
		client: client,
		bucket: bucket,
	}, nil
}

func (x *Client) Put(ctx context.Context, object string, data []byte, contentType string) error {
	w := x.client.Bucket(x.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write object",
			goerr.T(errs.TagExternal),
			goerr.V("bucket", x.bucket),
			goerr.V("object", object))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit object",
			goerr.T(errs.TagExternal),
			goerr.V("bucket", x.bucket),
			goerr.V("object", object))
	}
	return nil
}

func (x *Client) Get(ctx context.Context, object string) ([]byte, error) {
	rc, err := x.client.Bucket(x.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(err, "object not found",
				goerr.T(errs.TagNotFound),
				goerr.V("bucket", x.bucket),
				goerr.V("object", object))
		}
		return nil, goerr.Wrap(err, "failed to create reader",
			goerr.T(errs.TagExternal),
			goerr.V("bucket", x.bucket),
			goerr.V("object", object))
	}
	defer safe.Close(ctx, rc)

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object",
			goerr.T(errs.TagExternal),
			goerr.V("object", object))
	}
	return data, nil
}

func (x *Client) Close(ctx context.Context) {
	safe.Close(ctx, x.client)
}
