package backupconf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func minioParams() Params {
	return Params{
		BackupID: "restore-harness-1",
		Brokers:  []string{"kafka-broker-1:9092"},
		Topic:    "orders",
		Storage: Storage{
			Backend:         BackendS3,
			Bucket:          "kafka-backups",
			Region:          "us-east-1",
			Prefix:          "harness",
			Endpoint:        "http://minio:9000",
			PathStyle:       true,
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
		Compression: "zstd",
	}
}

func TestBackupDocument(t *testing.T) {
	t.Parallel()
	doc := Backup(minioParams())
	require.NoError(t, doc.Validate())

	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &generic))
	assert.Equal(t, "backup", generic["mode"])
	assert.Equal(t, "restore-harness-1", generic["backup_id"])
	assert.NotContains(t, generic, "target")

	source := generic["source"].(map[string]any)
	assert.Equal(t, []any{"kafka-broker-1:9092"}, source["bootstrap_servers"])
	assert.Equal(t, map[string]any{"include": []any{"orders"}}, source["topics"])

	storage := generic["storage"].(map[string]any)
	assert.Equal(t, true, storage["path_style"])
	assert.Equal(t, "http://minio:9000", storage["endpoint"])
	assert.Equal(t, map[string]any{"compression": "zstd"}, generic["backup"])
}

func TestRestoreDocument(t *testing.T) {
	t.Parallel()
	doc := Restore(minioParams())
	require.NoError(t, doc.Validate())
	assert.Nil(t, doc.Source)
	require.NotNil(t, doc.Target)
	assert.Equal(t, []string{"orders"}, doc.Target.Topics.Include)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		mutate func(*Document)
		want   string
	}{
		"bad mode":        {func(d *Document) { d.Mode = "export" }, "mode must be"},
		"no backup id":    {func(d *Document) { d.BackupID = " " }, "backup_id is required"},
		"no brokers":      {func(d *Document) { d.Source.BootstrapServers = nil }, "bootstrap_servers"},
		"no topics":       {func(d *Document) { d.Source.Topics.Include = nil }, "at least one topic"},
		"s3 no bucket":    {func(d *Document) { d.Storage.Bucket = "" }, "storage.bucket"},
		"unknown backend": {func(d *Document) { d.Storage.Backend = "gcs" }, "unsupported storage backend"},
		"fs no path": {func(d *Document) {
			d.Storage = Storage{Backend: BackendFilesystem}
		}, "storage.path"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			doc := Backup(minioParams())
			tc.mutate(&doc)
			err := doc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path, err := Write(dir, "backup.yaml", Backup(minioParams()))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Document
	require.NoError(t, yaml.Unmarshal(raw, &back))
	assert.Equal(t, Backup(minioParams()), back)
}

func TestWrite_RejectsInvalid(t *testing.T) {
	t.Parallel()
	doc := Backup(minioParams())
	doc.BackupID = ""
	_, err := Write(t.TempDir(), "backup.yaml", doc)
	assert.ErrorContains(t, err, "backup config")
}
