package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSESinkFrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()

	sink, ok := NewSSESink(rec)
	if !ok {
		t.Fatal("recorder must support flushing")
	}

	sink.Progress("quote moved to draft", 10, "")
	sink.Complete(true, "https://quotes.example/Q1", "", "run-1")

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: progress\ndata: {\"step\":\"quote moved to draft\",\"percent\":10}\n\n") {
		t.Fatalf("unexpected progress frame:\n%s", body)
	}
	if !strings.Contains(body, "event: complete\ndata: ") {
		t.Fatalf("complete frame missing:\n%s", body)
	}
}

func TestSSESinkTerminalIsFinal(t *testing.T) {
	rec := httptest.NewRecorder()

	sink, _ := NewSSESink(rec)
	sink.Error("boom")
	sink.Progress("late", 50, "")
	sink.Complete(true, "", "", "run-1")

	body := rec.Body.String()
	if strings.Count(body, "event: ") != 1 {
		t.Fatalf("expected exactly one event after terminal, got:\n%s", body)
	}
	if !strings.Contains(body, "event: error\n") {
		t.Fatalf("error frame missing:\n%s", body)
	}
}

func TestSSESinkPercentNonDecreasing(t *testing.T) {
	rec := httptest.NewRecorder()

	sink, _ := NewSSESink(rec)
	sink.Progress("first", 40, "")
	sink.Progress("second", 20, "")

	body := rec.Body.String()
	if !strings.Contains(body, `{"step":"second","percent":40}`) {
		t.Fatalf("lower percent must be raised to the last sent value:\n%s", body)
	}
}
