package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/core"
)

func sampleRecords() []core.Record {
	key := core.ObservationKey{ProjectID: "study-a", UserID: "p1", SourceID: "src-1"}
	return []core.Record{
		{
			Topic:     "vitalsync_heart_rate",
			Key:       key,
			Value:     map[string]any{"bpm": 61},
			Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			Topic:     "vitalsync_heart_rate",
			Key:       key,
			Value:     map[string]any{"bpm": 63},
			Timestamp: time.Date(2024, 1, 2, 10, 0, 5, 0, time.UTC),
		},
	}
}

func TestWriterPublishNDJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)

	require.NoError(t, w.Publish(context.Background(), sampleRecords()))
	require.NoError(t, w.Close())

	scanner := bufio.NewScanner(&buf)
	var lines []envelope
	for scanner.Scan() {
		var env envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &env))
		lines = append(lines, env)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "vitalsync_heart_rate", lines[0].Topic)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), lines[0].Timestamp)
}

func TestWriterPublishEmptyBatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)

	require.NoError(t, w.Publish(context.Background(), nil))
	assert.Zero(t, buf.Len())
}

func TestOpenFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.ndjson")
	s, err := Open(context.Background(), Config{Type: "file", Path: path})
	require.NoError(t, err)

	require.NoError(t, s.Publish(context.Background(), sampleRecords()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "file"})
	assert.Error(t, err, "file sink requires a path")

	_, err = Open(context.Background(), Config{Type: "kafka"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &Writer{}, s, "default sink is stdout")
}

type capturePut struct {
	inputs []*s3.PutObjectInput
}

func (c *capturePut) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.inputs = append(c.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func TestS3PublishWritesOneObjectPerBatch(t *testing.T) {
	capture := &capturePut{}
	s := &S3{
		client: capture,
		bucket: "vitalsync-records",
		prefix: "prod",
		Clock: func() time.Time {
			return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		},
	}

	require.NoError(t, s.Publish(context.Background(), sampleRecords()))
	require.NoError(t, s.Publish(context.Background(), nil))
	require.Len(t, capture.inputs, 1, "empty batches are skipped")

	input := capture.inputs[0]
	assert.Equal(t, "vitalsync-records", *input.Bucket)
	assert.Regexp(t, `^prod/2024/03/01/[0-9a-f-]+\.ndjson$`, *input.Key)

	body, err := io.ReadAll(input.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(body, []byte("\n")))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), Config{Type: "s3"})
	assert.Error(t, err)
}
