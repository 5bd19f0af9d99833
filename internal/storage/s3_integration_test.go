//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpelligrinomid/midrag/internal/testutil"
)

func TestS3ClientIntegration_ArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()

	s3Container := testutil.NewRustFSContainer(ctx, t)
	defer s3Container.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        s3Container.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-sources",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	require.NoError(t, client.EnsureBucket(ctx))
	// EnsureBucket is idempotent
	require.NoError(t, client.EnsureBucket(ctx))

	content := "Q1 planning notes.\n\nShip the beta by March."
	require.NoError(t, client.ArchiveSource(ctx, "acme", "note-1", content))

	got, err := client.GetSource(ctx, "acme", "note-1")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Re-archiving the same source overwrites it
	require.NoError(t, client.ArchiveSource(ctx, "acme", "note-1", "revised"))
	got, err = client.GetSource(ctx, "acme", "note-1")
	require.NoError(t, err)
	assert.Equal(t, "revised", got)

	require.NoError(t, client.DeleteSource(ctx, "acme", "note-1"))
	_, err = client.GetSource(ctx, "acme", "note-1")
	assert.Error(t, err)
}

func TestS3ClientIntegration_TenantScopedKeys(t *testing.T) {
	ctx := context.Background()

	s3Container := testutil.NewRustFSContainer(ctx, t)
	defer s3Container.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        s3Container.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-sources",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))

	require.NoError(t, client.ArchiveSource(ctx, "acme", "doc-1", "acme copy"))
	require.NoError(t, client.ArchiveSource(ctx, "", "doc-1", "global copy"))

	got, err := client.GetSource(ctx, "acme", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "acme copy", got)

	got, err = client.GetSource(ctx, "", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "global copy", got)

	// Deleting the tenant copy leaves the global one
	require.NoError(t, client.DeleteSource(ctx, "acme", "doc-1"))
	got, err = client.GetSource(ctx, "", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "global copy", got)
}
