// Package export writes reflections as JSON, JSON Lines or CSV.
//
// Every exporter accepts a slice through Export and a channel through
// ExportStream; the stream form writes records as they arrive so that large
// result sets are never held in memory.
//
//	exp, err := export.New("csv")
//	if err != nil {
//	    return err
//	}
//	err = exp.Export(ctx, records, os.Stdout)
package export
