package commands

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

var ts = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.trace")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func sampleEvents() []log.Event {
	return []log.Event{
		{
			Timestamp: ts,
			Direction: log.DirectionOut,
			Layer:     log.LayerSD,
			Category:  log.CategoryEntry,
			Entry:     &log.EntryEvent{Type: "FIND_SERVICE", Service: 0x1234, Instance: 0xffff, TTL: 3 * time.Second},
		},
		{
			Timestamp:  ts.Add(10 * time.Millisecond),
			Direction:  log.DirectionIn,
			Layer:      log.LayerSD,
			Category:   log.CategoryEntry,
			RemoteAddr: "192.0.2.10:30490",
			Entry:      &log.EntryEvent{Type: "OFFER_SERVICE", Service: 0x1234, Instance: 0x0001, TTL: 3 * time.Second},
		},
		{
			Timestamp: ts.Add(11 * time.Millisecond),
			Layer:     log.LayerSD,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityFindService,
				Key:      "1234:ffff",
				OldState: "SEARCHING",
				NewState: "FOUND",
			},
		},
		{
			Timestamp:    ts.Add(20 * time.Millisecond),
			ConnectionID: "7c0f3a1e-55aa-4f4e-9d7a-1b2c3d4e5f60",
			Direction:    log.DirectionIn,
			Layer:        log.LayerRouter,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Service:     0x1234,
				Method:      0x8001,
				Instance:    0x0001,
				Type:        someip.MessageTypeNotification,
				PayloadSize: 4,
				Outcome:     log.OutcomeForwarded,
				Receivers:   2,
			},
		},
		{
			Timestamp:    ts.Add(30 * time.Millisecond),
			ConnectionID: "7c0f3a1e-55aa-4f4e-9d7a-1b2c3d4e5f60",
			Direction:    log.DirectionIn,
			Layer:        log.LayerRouter,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Service:  0x5678,
				Method:   0x0001,
				Instance: 0x0001,
				Client:   0x0010,
				Session:  0x0003,
				Type:     someip.MessageTypeRequest,
				Outcome:  log.OutcomeDropped,
				Reason:   "no provider",
			},
		},
		{
			Timestamp: ts.Add(2 * time.Second),
			Layer:     log.LayerApplication,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerApplication, Message: "service not offered", Context: "stopoffer (0x5678, 0x0001)"},
		},
	}
}

func TestViewFormatsEveryEventKind(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T09:30:00.000000Z [conn:] OUT SD FIND_SERVICE",
		"Remote: 192.0.2.10:30490",
		"TTL: 3s",
		"Entity: FIND_SERVICE 1234:ffff",
		"SEARCHING -> FOUND",
		"[conn:7c0f3a1e] IN  ROUTER NOTIFICATION",
		"Service: 0x1234  Method: 0x8001  Instance: 0x0001",
		"Outcome: FORWARDED (2 receivers)",
		"Client: 0x0010  Session: 0x0003",
		"Reason: no provider",
		"APPLICATION Error",
		"Context: stopoffer (0x5678, 0x0001)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestViewFilters(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	layer := log.LayerRouter
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if strings.Contains(buf.String(), "FIND_SERVICE") {
		t.Error("router filter should exclude SD events")
	}
	if got := strings.Count(buf.String(), "ROUTER"); got != 2 {
		t.Errorf("expected 2 router events, got %d", got)
	}

	svc := someip.ServiceID(0x1234)
	buf.Reset()
	if err := RunView(path, ViewFilter{Service: &svc}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Contains(output, "0x5678") {
		t.Error("service filter should exclude other services")
	}
	if strings.Contains(output, "SEARCHING") {
		t.Error("service filter should exclude state changes")
	}
	if got := strings.Count(output, "Service: 0x1234"); got != 3 {
		t.Errorf("expected 3 events of service 0x1234, got %d", got)
	}
}

func TestViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.trace"), ViewFilter{}, io.Discard)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("SD"); err != nil || l != log.LayerSD {
		t.Errorf("ParseLayerFlag(SD) = %v, %v", l, err)
	}
	if l, err := ParseLayerFlag("app"); err != nil || l != log.LayerApplication {
		t.Errorf("ParseLayerFlag(app) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("Out"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(Out) = %v, %v", d, err)
	}
	if c, err := ParseCategoryFlag("entry"); err != nil || c != log.CategoryEntry {
		t.Errorf("ParseCategoryFlag(entry) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("control"); err == nil {
		t.Error("expected error for unknown category")
	}
	if s, err := ParseServiceFlag("0x1234"); err != nil || s != 0x1234 {
		t.Errorf("ParseServiceFlag(0x1234) = %v, %v", s, err)
	}
	if s, err := ParseServiceFlag("42"); err != nil || s != 42 {
		t.Errorf("ParseServiceFlag(42) = %v, %v", s, err)
	}
	if _, err := ParseServiceFlag("0x10000"); err == nil {
		t.Error("expected error for out of range service")
	}
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 6",
		"ROUTER:        2",
		"SD:            3",
		"APPLICATION:   1",
		"ENTRY:         2",
		"FORWARDED:     1",
		"DROPPED:       1",
		"FIND_SERVICE:            1",
		"OFFER_SERVICE:           1",
		"0x1234: 3",
		"0x5678: 1",
		"Connections: 1",
		"[7c0f3a1e] 2 events",
		"forwarded 1, dropped 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("empty file should not print a time range")
	}
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterByConnectionAndCategory(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.trace")

	n, err := RunFilter(path, FilterOptions{
		Output:   outPath,
		ConnID:   "7c0f3a1e-55aa-4f4e-9d7a-1b2c3d4e5f60",
		Category: "message",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events written, got %d", n)
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events in output, got %d", len(events))
	}
	for _, e := range events {
		if e.Message == nil {
			t.Errorf("expected message event, got %+v", e)
		}
	}
}

func TestFilterByServiceAndTime(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.trace")

	n, err := RunFilter(path, FilterOptions{
		Output:    outPath,
		Service:   "0x1234",
		TimeStart: ts.Add(5 * time.Millisecond).Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events written, got %d", n)
	}
	events := readAll(t, outPath)
	if len(events) != 2 || events[0].Entry == nil || events[0].Entry.Type != "OFFER_SERVICE" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestFilterRejectsBadOptions(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.trace")

	for _, opts := range []FilterOptions{
		{Output: out, Layer: "wire"},
		{Output: out, Direction: "sideways"},
		{Output: out, Category: "snapshot"},
		{Output: out, Service: "service"},
		{Output: out, TimeStart: "yesterday"},
		{Output: out, TimeEnd: "tomorrow"},
	} {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("rejected options should not create the output file")
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[3], `"Service":4660`) {
		t.Errorf("expected message service in %s", lines[3])
	}
	if !strings.Contains(lines[1], `"RemoteAddr":"192.0.2.10:30490"`) {
		t.Errorf("expected remote address in %s", lines[1])
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open trace: %v", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := export(reader, "csv", &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected header and 6 rows, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[5], "REQUEST,0x5678,0x1,DROPPED: no provider") {
		t.Errorf("unexpected drop row %q", lines[5])
	}
	if !strings.Contains(lines[3], "FIND_SERVICE 1234:ffff SEARCHING -> FOUND") {
		t.Errorf("unexpected state row %q", lines[3])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
