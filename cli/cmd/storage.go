package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/msgfmt/lode"
)

// storageChoice holds parsed Lode storage configuration.
type storageChoice struct {
	dataset   string
	backend   string // "fs" or "s3"; empty disables storage
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
	batchSize int

	// flushInterval flushes partial batches on a timer; zero disables it.
	flushInterval time.Duration
}

func (s storageChoice) enabled() bool {
	return s.backend != ""
}

func (s storageChoice) validate() error {
	switch s.backend {
	case "":
		if s.path != "" {
			return fmt.Errorf("--storage-path requires --storage-backend")
		}
		return nil
	case "fs", "s3":
		if s.path == "" {
			return fmt.Errorf("--storage-backend %s requires --storage-path", s.backend)
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// location describes where a run's partition lives, for reports and
// notifications.
func (s storageChoice) location(day, runID string) string {
	if !s.enabled() {
		return ""
	}
	base := strings.TrimSuffix(s.path, "/")
	if s.backend == "s3" {
		base = "s3://" + base
	}
	return fmt.Sprintf("%s/datasets/%s/partitions/day=%s/run_id=%s", base, s.dataset, day, runID)
}

// storageFromFlags reads the StorageReadFlags.
func storageFromFlags(c *cli.Context) storageChoice {
	return storageChoice{
		dataset:   c.String("storage-dataset"),
		backend:   c.String("storage-backend"),
		path:      c.String("storage-path"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	}
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, s storageChoice) (lodelibrary.Dataset, error) {
	switch s.backend {
	case "fs":
		return lode.NewReadDatasetFS(s.dataset, s.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, s.dataset, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}

// buildLodeClient creates the write-side Lode client for a run.
func buildLodeClient(ctx context.Context, s storageChoice, cfg lode.Config) (*lode.LodeClient, error) {
	switch s.backend {
	case "fs":
		return lode.NewLodeClient(cfg, s.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}
