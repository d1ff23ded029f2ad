// Package backupconf builds the configuration documents handed to the backup tool. The
// harness owns only the typed document; the tool sees the YAML file path.
package backupconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ModeBackup  = "backup"
	ModeRestore = "restore"

	BackendS3         = "s3"
	BackendFilesystem = "filesystem"
)

type Document struct {
	Mode     string         `yaml:"mode"`
	BackupID string         `yaml:"backup_id"`
	Source   *Cluster       `yaml:"source,omitempty"`
	Target   *Cluster       `yaml:"target,omitempty"`
	Storage  Storage        `yaml:"storage"`
	Backup   *BackupOptions `yaml:"backup,omitempty"`
}

type Cluster struct {
	BootstrapServers []string       `yaml:"bootstrap_servers"`
	Topics           TopicSelection `yaml:"topics"`
}

type TopicSelection struct {
	Include []string `yaml:"include"`
}

type Storage struct {
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	PathStyle       bool   `yaml:"path_style,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	Path            string `yaml:"path,omitempty"`
}

type BackupOptions struct {
	Compression string `yaml:"compression,omitempty"`
}

// Params are the run-specific values both documents are derived from.
type Params struct {
	BackupID    string
	Brokers     []string
	Topic       string
	Storage     Storage
	Compression string
}

func Backup(p Params) Document {
	return Document{
		Mode:     ModeBackup,
		BackupID: p.BackupID,
		Source: &Cluster{
			BootstrapServers: append([]string(nil), p.Brokers...),
			Topics:           TopicSelection{Include: []string{p.Topic}},
		},
		Storage: p.Storage,
		Backup:  &BackupOptions{Compression: p.Compression},
	}
}

func Restore(p Params) Document {
	return Document{
		Mode:     ModeRestore,
		BackupID: p.BackupID,
		Target: &Cluster{
			BootstrapServers: append([]string(nil), p.Brokers...),
			Topics:           TopicSelection{Include: []string{p.Topic}},
		},
		Storage: p.Storage,
	}
}

func (d Document) Validate() error {
	var errs []error
	if d.Mode != ModeBackup && d.Mode != ModeRestore {
		errs = append(errs, fmt.Errorf("mode must be %q or %q (got %q)", ModeBackup, ModeRestore, d.Mode))
	}
	if strings.TrimSpace(d.BackupID) == "" {
		errs = append(errs, errors.New("backup_id is required"))
	}
	cluster := d.Source
	if d.Mode == ModeRestore {
		cluster = d.Target
	}
	if cluster == nil || len(cluster.BootstrapServers) == 0 {
		errs = append(errs, errors.New("bootstrap_servers is required"))
	} else if len(cluster.Topics.Include) == 0 {
		errs = append(errs, errors.New("at least one topic is required"))
	}
	switch d.Storage.Backend {
	case BackendS3:
		if d.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for s3"))
		}
	case BackendFilesystem:
		if d.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for filesystem"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage backend %q", d.Storage.Backend))
	}
	return errors.Join(errs...)
}

// Write validates d and stores it as name under dir. The file may hold storage
// credentials, so it is created owner-readable only.
func Write(dir, name string, d Document) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("%s config: %w", d.Mode, err)
	}
	raw, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal %s config: %w", d.Mode, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
