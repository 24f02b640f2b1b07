package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetEntry struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account    string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64  `parquet:"name=timestamp, type=INT64"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	PrevHash   string `parquet:"name=prev_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Hash       string `parquet:"name=hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every entry to path and returns the row count.
func (s *Store) ExportParquet(ctx context.Context, path string) (int, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEntry), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	var after uint64
	for {
		batch, err := s.List(ctx, after, 500)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return rows, err
		}
		if len(batch) == 0 {
			break
		}
		for _, entry := range batch {
			row := &parquetEntry{
				ID:         entry.ID.String(),
				Seq:        int64(entry.Seq),
				Type:       entry.Type,
				Account:    entry.Account,
				Timestamp:  entry.Timestamp,
				Attributes: entry.Attributes,
				PrevHash:   entry.PrevHash,
				Hash:       entry.Hash,
				CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return rows, fmt.Errorf("audit: write parquet row: %w", err)
			}
			rows++
			after = entry.Seq
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return rows, fmt.Errorf("audit: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return rows, err
	}
	return rows, nil
}
