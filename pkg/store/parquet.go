package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
)

// Trace archives are Parquet files with one row per execution trace:
// trace_id, fingerprint, success, cost, timestamp (unix nanos) and the
// task list as a JSON string column. ImportParquetTraces loads an
// archive into a TraceStore, for seeding a fresh deployment from
// captured history.
func ImportParquetTraces(ctx context.Context, path string, traces TraceStore) (int, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageFailure, "failed to open parquet archive")
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageFailure, "failed to create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageFailure, "failed to read archive schema")
	}
	for _, col := range []string{"trace_id", "fingerprint", "success", "cost", "timestamp", "tasks"} {
		if len(schema.FieldIndices(col)) == 0 {
			return 0, errors.WithFields(
				errors.New(errors.InvalidInput, "archive is missing a required column"),
				errors.Fields{"column": col})
		}
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageFailure, "failed to read archive table")
	}
	defer table.Release()

	var (
		ids          = stringColumn(table, schema, "trace_id")
		fingerprints = stringColumn(table, schema, "fingerprint")
		successes    = boolColumn(table, schema, "success")
		costs        = floatColumn(table, schema, "cost")
		timestamps   = intColumn(table, schema, "timestamp")
		taskDocs     = stringColumn(table, schema, "tasks")
	)

	imported := 0
	for i := 0; i < int(table.NumRows()); i++ {
		var tasks []core.TaskExecution
		if err := json.Unmarshal([]byte(taskDocs[i]), &tasks); err != nil {
			return imported, errors.Wrap(err, errors.InvalidInput, "failed to decode task list")
		}

		trace := &core.ExecutionTrace{
			ID:          ids[i],
			Fingerprint: fingerprints[i],
			Tasks:       tasks,
			Success:     successes[i],
			Cost:        costs[i],
			Timestamp:   time.Unix(0, timestamps[i]).UTC(),
		}
		if err := traces.PutTrace(ctx, trace); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func stringColumn(table arrow.Table, schema *arrow.Schema, name string) []string {
	out := make([]string, 0, table.NumRows())
	col := table.Column(schema.FieldIndices(name)[0])
	for _, chunk := range col.Data().Chunks() {
		values := chunk.(*array.String)
		for i := 0; i < values.Len(); i++ {
			out = append(out, values.Value(i))
		}
	}
	return out
}

func boolColumn(table arrow.Table, schema *arrow.Schema, name string) []bool {
	out := make([]bool, 0, table.NumRows())
	col := table.Column(schema.FieldIndices(name)[0])
	for _, chunk := range col.Data().Chunks() {
		values := chunk.(*array.Boolean)
		for i := 0; i < values.Len(); i++ {
			out = append(out, values.Value(i))
		}
	}
	return out
}

func floatColumn(table arrow.Table, schema *arrow.Schema, name string) []float64 {
	out := make([]float64, 0, table.NumRows())
	col := table.Column(schema.FieldIndices(name)[0])
	for _, chunk := range col.Data().Chunks() {
		values := chunk.(*array.Float64)
		for i := 0; i < values.Len(); i++ {
			out = append(out, values.Value(i))
		}
	}
	return out
}

func intColumn(table arrow.Table, schema *arrow.Schema, name string) []int64 {
	out := make([]int64, 0, table.NumRows())
	col := table.Column(schema.FieldIndices(name)[0])
	for _, chunk := range col.Data().Chunks() {
		values := chunk.(*array.Int64)
		for i := 0; i < values.Len(); i++ {
			out = append(out, values.Value(i))
		}
	}
	return out
}
