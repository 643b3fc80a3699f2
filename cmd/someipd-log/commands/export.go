package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
)

// RunExport exports the trace file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, format, w)
}

func export(reader *log.Reader, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category",
	"remote_addr", "type", "service", "instance", "detail",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	eventType := "unknown"
	var service, instance, detail string
	hex := func(v uint16) string { return "0x" + strconv.FormatUint(uint64(v), 16) }

	switch {
	case event.Message != nil:
		m := event.Message
		eventType = m.Type.String()
		service, instance = hex(uint16(m.Service)), hex(uint16(m.Instance))
		detail = m.Outcome.String()
		if m.Reason != "" {
			detail += ": " + m.Reason
		}
	case event.Entry != nil:
		e := event.Entry
		eventType = e.Type
		service, instance = hex(uint16(e.Service)), hex(uint16(e.Instance))
		if e.Eventgroup != 0 {
			detail = "eventgroup " + hex(uint16(e.Eventgroup))
		}
	case event.StateChange != nil:
		sc := event.StateChange
		eventType = "state"
		detail = fmt.Sprintf("%s %s %s -> %s", sc.Entity, sc.Key, sc.OldState, sc.NewState)
	case event.Error != nil:
		eventType = "error"
		detail = event.Error.Message
	}

	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ConnectionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.RemoteAddr,
		eventType,
		service,
		instance,
		detail,
	}
}
