package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/pkg/options"
)

func TestNewMinIOProvider(t *testing.T) {
	opts := options.NewS3Options()
	opts.BucketName = "fleet"

	p, err := NewMinIOProvider(opts)
	require.NoError(t, err)
	mp := p.(*minioProvider)
	assert.Equal(t, "fleet", mp.bucket)
	assert.Equal(t, "127.0.0.1:9000", mp.client.EndpointURL().Host)
	assert.Equal(t, "http", mp.client.EndpointURL().Scheme)
}

func TestNewMinIOProviderRejectsURL(t *testing.T) {
	opts := options.NewS3Options()
	opts.Endpoint = "http://minio:9000/path"

	_, err := NewMinIOProvider(opts)
	assert.Error(t, err)
}
