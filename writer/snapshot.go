// Package writer exports refreshed market states as parquet files to S3.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "marketpulse/config"
	"marketpulse/internal/metadata"
	"marketpulse/internal/metrics"
	"marketpulse/logger"
	"marketpulse/models"
)

const componentName = "snapshot_writer"

// watchlistKey partitions watchlist files next to the series files.
const watchlistKey = "watchlist"

// keepSnapshots bounds the snapshot history kept in the table metadata.
const keepSnapshots = 500

// ObjectPutter is the S3 operation the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SnapshotExporter writes one parquet file per series plus one for the
// watchlist on every refresh.
type SnapshotExporter struct {
	cfg        appconfig.WriterConfig
	bucket     string
	version    string
	client     ObjectPutter
	collectors *metrics.Collectors
	log        *logger.Log
	meta       *metadata.Generator
	newID      func() string
}

// NewS3Client builds an S3 client from the storage configuration. Static
// credentials are used when both keys are set, the default chain otherwise.
func NewS3Client(ctx context.Context, cfg appconfig.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	logger.GetLogger().WithComponent(componentName).WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 client initialized")

	return client, nil
}

// NewSnapshotExporter returns an exporter uploading through client.
func NewSnapshotExporter(cfg *appconfig.Config, client ObjectPutter, collectors *metrics.Collectors) *SnapshotExporter {
	return &SnapshotExporter{
		cfg:        cfg.Writer,
		bucket:     cfg.Storage.S3.Bucket,
		version:    cfg.App.Version,
		client:     client,
		collectors: collectors,
		log:        logger.GetLogger(),
		meta:       metadata.NewGenerator(tableLocation(cfg.Storage.S3.Bucket, cfg.Writer.Partitioning.Prefix), keepSnapshots),
		newID:      func() string { return uuid.New().String() },
	}
}

func tableLocation(bucket, prefix string) string {
	return "s3://" + path.Join(bucket, prefix)
}

type exportFile struct {
	key  models.SeriesKey
	data []byte
	rows int
}

// Export encodes and uploads state. Every file is attempted; failures are
// joined into the returned error.
func (e *SnapshotExporter) Export(ctx context.Context, state models.MarketState) error {
	start := time.Now()
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	var (
		stats   metrics.WriterStats
		errs    []error
		written []metadata.DataFile
	)

	at := time.Now()
	if state.RefreshedAt != nil {
		at = *state.RefreshedAt
	}

	for _, f := range e.encode(state, &errs) {
		key := e.objectKey(f.key, at)
		if err := e.upload(ctx, key, f.data, parquetContent); err != nil {
			errs = append(errs, err)
			continue
		}
		stats.FilesWritten++
		stats.BytesWritten += int64(len(f.data))
		written = append(written, metadata.DataFile{
			Path:        "s3://" + path.Join(e.bucket, key),
			FileSize:    int64(len(f.data)),
			RecordCount: int64(f.rows),
			Partition:   map[string]any{"series": string(f.key), "date": e.partitionDate(at)},
		})
		entry := e.log.WithComponent(componentName).WithRefresh(state.RefreshID).WithSeries(string(f.key)).WithFields(logger.Fields{
			"key":       key,
			"file_size": len(f.data),
		})
		logger.LogDataFlowEntry(entry, "market_store", "s3", f.rows, string(f.key))
	}
	if len(written) > 0 {
		if err := e.commit(ctx, state.RefreshID, at, written); err != nil {
			errs = append(errs, err)
		}
	}
	stats.ErrorsCount = int64(len(errs))

	metrics.ReportWriter(e.log, e.collectors, componentName, stats)
	logger.LogPerformanceEntry(e.log.WithRefresh(state.RefreshID), componentName, "export", time.Since(start), logger.Fields{
		"files": stats.FilesWritten,
	})

	if len(errs) > 0 {
		return fmt.Errorf("export refresh %s: %w", state.RefreshID, errors.Join(errs...))
	}
	return nil
}

func (e *SnapshotExporter) encode(state models.MarketState, errs *[]error) []exportFile {
	compression := e.cfg.Formats.Parquet.Compression
	pageSize := e.cfg.Formats.Parquet.PageSize
	files := make([]exportFile, 0, len(models.SeriesKeys)+1)

	add := func(key models.SeriesKey, data []byte, rows int, err error) {
		if err != nil {
			*errs = append(*errs, fmt.Errorf("encode %s: %w", key, err))
			return
		}
		files = append(files, exportFile{key: key, data: data, rows: rows})
	}

	for _, key := range models.SeriesKeys {
		live := state.Provenance.Live(key)
		var rows []SeriesRecord
		switch key {
		case models.SeriesSP500:
			rows = indexRecords(key, state.SP500, live, state.RefreshID)
		case models.SeriesNasdaq:
			rows = indexRecords(key, state.Nasdaq, live, state.RefreshID)
		case models.SeriesTreasury:
			rows = macroRecords(key, state.Treasury10Y, live, state.RefreshID)
		case models.SeriesM2Supply:
			rows = macroRecords(key, state.M2Supply, live, state.RefreshID)
		}
		if len(rows) == 0 {
			continue
		}
		data, err := encodeParquet(rows, compression, pageSize)
		add(key, data, len(rows), err)
	}

	if len(state.Watchlist) > 0 {
		rows := watchlistRecords(state.Watchlist, state.RefreshID)
		data, err := encodeParquet(rows, compression, pageSize)
		add(watchlistKey, data, len(rows), err)
	}
	return files
}

// commit uploads the manifest of the written files and the updated table
// metadata under {prefix}/metadata/.
func (e *SnapshotExporter) commit(ctx context.Context, refreshID string, at time.Time, files []metadata.DataFile) error {
	c, err := e.meta.Commit(refreshID, at, files)
	if err != nil {
		return err
	}
	dir := path.Join(e.cfg.Partitioning.Prefix, "metadata")
	if err := e.upload(ctx, path.Join(dir, c.ManifestName), c.Manifest, jsonContent); err != nil {
		return err
	}
	return e.upload(ctx, path.Join(dir, "metadata.json"), c.Metadata, jsonContent)
}

func (e *SnapshotExporter) partitionDate(at time.Time) string {
	layout := e.cfg.Partitioning.TimeFormat
	if layout == "" {
		layout = models.DateLayout
	}
	return at.UTC().Format(layout)
}

// objectKey builds {prefix}/series={key}/date={day}/{key}_{unixMillis}_{uuid}.parquet.
func (e *SnapshotExporter) objectKey(key models.SeriesKey, at time.Time) string {
	filename := fmt.Sprintf("%s_%d_%s.parquet", key, at.UnixMilli(), e.newID())
	return path.Join(
		e.cfg.Partitioning.Prefix,
		"series="+string(key),
		"date="+e.partitionDate(at),
		filename,
	)
}

type content struct {
	mime string
	kind string
}

var (
	parquetContent = content{mime: "application/octet-stream", kind: "parquet"}
	jsonContent    = content{mime: "application/json", kind: "iceberg-metadata"}
)

func (e *SnapshotExporter) upload(ctx context.Context, key string, data []byte, ct content) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ct.mime),
		Metadata: map[string]string{
			"content-type":        ct.kind,
			"compression":         e.cfg.Formats.Parquet.Compression,
			"marketpulse-version": e.version,
		},
	}
	if _, err := e.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", key, e.bucket, err)
	}
	return nil
}
