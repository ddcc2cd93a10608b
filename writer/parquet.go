package writer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"marketpulse/models"
)

// SeriesRecord is one row of an exported series file.
type SeriesRecord struct {
	Series    string   `parquet:"name=series, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date      string   `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value     float64  `parquet:"name=value, type=DOUBLE"`
	SMA20     *float64 `parquet:"name=sma20, type=DOUBLE, repetitiontype=OPTIONAL"`
	SMA60     *float64 `parquet:"name=sma60, type=DOUBLE, repetitiontype=OPTIONAL"`
	SMA120    *float64 `parquet:"name=sma120, type=DOUBLE, repetitiontype=OPTIONAL"`
	Source    string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	RefreshID string   `parquet:"name=refresh_id, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WatchlistRecord is one row of an exported watchlist file.
type WatchlistRecord struct {
	Symbol        string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name          string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price         float64 `parquet:"name=price, type=DOUBLE"`
	Change        float64 `parquet:"name=change, type=DOUBLE"`
	ChangePercent float64 `parquet:"name=change_percent, type=DOUBLE"`
	PER           float64 `parquet:"name=per, type=DOUBLE"`
	PBR           float64 `parquet:"name=pbr, type=DOUBLE"`
	DividendYield float64 `parquet:"name=dividend_yield, type=DOUBLE"`
	RefreshID     string  `parquet:"name=refresh_id, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memFileWriter implements source.ParquetFile on top of an in-memory buffer.
type memFileWriter struct {
	buffer *bytes.Buffer
}

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "lzo":
		return parquet.CompressionCodec_LZO
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// encodeParquet writes rows into a single in-memory parquet file.
func encodeParquet[T any](rows []T, compression string, pageSize int) ([]byte, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(T), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)
	if pageSize > 0 {
		pw.PageSize = int64(pageSize)
	}

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return mw.Bytes(), nil
}

func sourceTag(live bool) string {
	if live {
		return "live"
	}
	return "synthetic"
}

func indexRecords(key models.SeriesKey, points []models.IndexPoint, live bool, refreshID string) []SeriesRecord {
	out := make([]SeriesRecord, 0, len(points))
	for _, p := range points {
		out = append(out, SeriesRecord{
			Series:    string(key),
			Date:      p.Date,
			Value:     p.Value,
			SMA20:     p.SMA20,
			SMA60:     p.SMA60,
			SMA120:    p.SMA120,
			Source:    sourceTag(live),
			RefreshID: refreshID,
		})
	}
	return out
}

func macroRecords(key models.SeriesKey, points []models.MacroPoint, live bool, refreshID string) []SeriesRecord {
	out := make([]SeriesRecord, 0, len(points))
	for _, p := range points {
		out = append(out, SeriesRecord{
			Series:    string(key),
			Date:      p.Date,
			Value:     p.Value,
			Source:    sourceTag(live),
			RefreshID: refreshID,
		})
	}
	return out
}

func watchlistRecords(watchlist []models.StockDetail, refreshID string) []WatchlistRecord {
	out := make([]WatchlistRecord, 0, len(watchlist))
	for _, d := range watchlist {
		out = append(out, WatchlistRecord{
			Symbol:        d.Symbol,
			Name:          d.Name,
			Price:         d.Price,
			Change:        d.Change,
			ChangePercent: d.ChangePercent,
			PER:           d.PER,
			PBR:           d.PBR,
			DividendYield: d.DividendYield,
			RefreshID:     refreshID,
		})
	}
	return out
}
