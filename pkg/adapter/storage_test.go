package adapter_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
)

func TestStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewStorage(ctx, bucket)
	gt.NoError(t, err)
	gt.Equal(t, client.Bucket(), bucket)

	key := "imoye_test/" + uuid.NewString() + ".txt"
	uri, err := client.Put(ctx, key, "text/plain", strings.NewReader("hello"))
	gt.NoError(t, err)
	gt.Equal(t, uri, "gs://"+bucket+"/"+key)

	r, err := client.Get(ctx, key)
	gt.NoError(t, err)
	raw, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.NoError(t, r.Close())
	gt.Equal(t, string(raw), "hello")

	gt.NoError(t, client.Delete(ctx, key))

	_, err = client.Get(ctx, key)
	gt.True(t, errors.Is(err, model.ErrObjectNotFound))
}
