package artifacts

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3API struct {
	pages  []*s3.ListObjectsV2Output
	inputs []*s3.ListObjectsV2Input
	err    error
}

func (m *mockS3API) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	out := m.pages[0]
	m.pages = m.pages[1:]
	return out, nil
}

func TestCheckCountsAcrossPages(t *testing.T) {
	mock := &mockS3API{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []s3types.Object{{Size: aws.Int64(100)}, {Size: aws.Int64(50)}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []s3types.Object{{Size: aws.Int64(25)}},
			IsTruncated: aws.Bool(false),
		},
	}}

	sum, err := NewFromAPI(mock, "kafka-backups", "/integrity/").Check(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Objects)
	assert.Equal(t, int64(175), sum.Bytes)
	assert.Equal(t, "integrity/run-1/", sum.Prefix)
	require.Len(t, mock.inputs, 2)
	assert.Equal(t, "next", aws.ToString(mock.inputs[1].ContinuationToken))
}

func TestCheckEmptyPrefix(t *testing.T) {
	mock := &mockS3API{pages: []*s3.ListObjectsV2Output{{IsTruncated: aws.Bool(false)}}}

	sum, err := NewFromAPI(mock, "kafka-backups", "").Check(context.Background(), "run-1")
	assert.ErrorIs(t, err, ErrNoArtifacts)
	assert.Zero(t, sum.Objects)
}

func TestCheckListError(t *testing.T) {
	mock := &mockS3API{err: errors.New("AccessDenied")}

	_, err := NewFromAPI(mock, "kafka-backups", "p").Check(context.Background(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoArtifacts)
	assert.Contains(t, err.Error(), "s3://kafka-backups/p/")
}

func TestJoinPrefix(t *testing.T) {
	assert.Equal(t, "", joinPrefix("", ""))
	assert.Equal(t, "id/", joinPrefix("", "id"))
	assert.Equal(t, "base/", joinPrefix("base/", ""))
	assert.Equal(t, "a/b/id/", joinPrefix("/a/b/", "id"))
}
