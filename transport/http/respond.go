package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"

	"grafeodb/server/engine"
	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/stream"
)

func writeError(w nethttp.ResponseWriter, err error) {
	se := svcerrors.As(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(se.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Error: string(se.Kind), Detail: se.Message, Extra: se.Details})
}

func writeJSON(w nethttp.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeQueryResult streams a query result as the JSON envelope: a header
// (columns), a rows array filled batch by batch, and a footer
// (execution_time_ms, rows_scanned). It is used for both single-batch and
// multi-batch results so the streaming and materialized code paths are the
// same function (spec invariant 4: byte-identical output).
func writeQueryResult(ctx context.Context, w nethttp.ResponseWriter, cur engine.Cursor, batchSize int) error {
	s := stream.New(cur, batchSize)
	defer s.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)

	enc := json.NewEncoder(w)

	if _, err := w.Write([]byte(`{"columns":`)); err != nil {
		return err
	}
	colBytes, err := json.Marshal(s.Columns())
	if err != nil {
		return err
	}
	if _, err := w.Write(colBytes); err != nil {
		return err
	}
	if _, err := w.Write([]byte(`,"rows":[`)); err != nil {
		return err
	}

	first := true
	for {
		batch, ok, err := s.NextBatch(ctx)
		if err != nil {
			// the header has already been emitted; close the array and
			// report the error in the footer rather than corrupting a
			// half-written JSON document.
			_, _ = w.Write([]byte(`]`))
			se := svcerrors.As(err)
			footer := map[string]interface{}{"error": string(se.Kind), "detail": se.Message}
			_, _ = w.Write([]byte(`,"result_error":`))
			fb, _ := json.Marshal(footer)
			_, _ = w.Write(fb)
			_, _ = w.Write([]byte(`}`))
			return err
		}
		if !ok {
			break
		}
		for _, row := range batch {
			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return err
				}
			}
			first = false
			if err := enc.Encode(rowToJSON(row)); err != nil {
				return err
			}
		}
		if f, ok := w.(interface{ Flush() }); ok {
			f.Flush()
		}
	}

	if _, err := w.Write([]byte(`],"execution_time_ms":`)); err != nil {
		return err
	}
	if _, err := w.Write([]byte(jsonInt(s.ExecutionTime().Milliseconds()))); err != nil {
		return err
	}
	if _, err := w.Write([]byte(`,"rows_scanned":`)); err != nil {
		return err
	}
	if _, err := w.Write([]byte(jsonInt(s.RowsScanned()))); err != nil {
		return err
	}
	_, err = w.Write([]byte(`}`))
	return err
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
