package export

import (
	"context"
	"fmt"
	"io"

	"mercator-hq/mediator/pkg/reflection"
)

// Formats lists the names accepted by New.
var Formats = []string{"json", "jsonl", "csv"}

// StreamExporter is an Exporter that can also consume a channel.
type StreamExporter interface {
	reflection.Exporter
	ExportStream(ctx context.Context, recordsCh <-chan *reflection.Reflection, w io.Writer) error
}

// New returns the exporter for format.
func New(format string) (StreamExporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(true), nil
	case "jsonl":
		return NewJSONLinesExporter(), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want one of %v)", format, Formats)
	}
}
