package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/mediator/pkg/reflection"
)

// JSONExporter writes reflections as a JSON array, or as one object per line
// when Lines is set.
type JSONExporter struct {
	// Pretty enables indentation. Ignored in Lines mode.
	Pretty bool

	// Lines writes newline-delimited JSON instead of an array.
	Lines bool
}

// NewJSONExporter creates a JSON array exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// NewJSONLinesExporter creates a newline-delimited JSON exporter.
func NewJSONLinesExporter() *JSONExporter {
	return &JSONExporter{Lines: true}
}

func (e *JSONExporter) format() string {
	if e.Lines {
		return "jsonl"
	}
	return "json"
}

// Export writes records to w. An empty slice produces "[]" (or nothing in
// Lines mode).
func (e *JSONExporter) Export(ctx context.Context, records []*reflection.Reflection, w io.Writer) error {
	ch := make(chan *reflection.Reflection, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return e.ExportStream(ctx, ch, w)
}

// ExportStream writes records from recordsCh until it is closed.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *reflection.Reflection, w io.Writer) error {
	if !e.Lines {
		if _, err := w.Write([]byte("[")); err != nil {
			return reflection.NewExportError(e.format(), 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-recordsCh:
			if !ok {
				if !e.Lines {
					closing := "]"
					if e.Pretty && count > 0 {
						closing = "\n]"
					}
					if _, err := w.Write([]byte(closing)); err != nil {
						return reflection.NewExportError(e.format(), count, err)
					}
				}
				return nil
			}

			data, err := e.serialize(r)
			if err != nil {
				return reflection.NewExportError(e.format(), count, err)
			}
			if _, err := w.Write(e.prefix(count)); err != nil {
				return reflection.NewExportError(e.format(), count, err)
			}
			if _, err := w.Write(data); err != nil {
				return reflection.NewExportError(e.format(), count, err)
			}
			if e.Lines {
				if _, err := w.Write([]byte("\n")); err != nil {
					return reflection.NewExportError(e.format(), count, err)
				}
			}
			count++
		}
	}
}

// prefix is written before the n-th record.
func (e *JSONExporter) prefix(n int) []byte {
	switch {
	case e.Lines:
		return nil
	case n == 0 && e.Pretty:
		return []byte("\n  ")
	case n == 0:
		return nil
	case e.Pretty:
		return []byte(",\n  ")
	default:
		return []byte(",")
	}
}

func (e *JSONExporter) serialize(r *reflection.Reflection) ([]byte, error) {
	if e.Pretty && !e.Lines {
		return json.MarshalIndent(r, "  ", "  ")
	}
	return json.Marshal(r)
}
