package inspector

import (
	"net/http"
	"testing"
	"time"
)

func sampleTx(url string) Transaction {
	now := time.Now()
	return Transaction{
		StartedAt:     now,
		EndedAt:       now.Add(100 * time.Millisecond),
		RequestMethod: "POST",
		RequestURL:    url,
		RequestHeaders: http.Header{
			"Authorization": []string{"Bearer secret"},
			"Content-Type":  []string{"application/json"},
		},
		ResponseStatus: 200,
	}
}

func TestInspector_DisabledByDefault(t *testing.T) {
	i := New()
	if i.Enabled() {
		t.Fatalf("expected disabled by default")
	}
}

func TestInspector_RedactsAuthorizationHeader(t *testing.T) {
	i := New(WithEnabled(true))
	i.Record(sampleTx("https://example.com/v1/chat/completions"))

	snap := i.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d transactions, want 1", len(snap))
	}
	if snap[0].RequestHeaders.Get("Authorization") != "[redacted]" {
		t.Fatalf("expected Authorization header to be redacted, got %q", snap[0].RequestHeaders.Get("Authorization"))
	}
	if snap[0].RequestHeaders.Get("Content-Type") != "application/json" {
		t.Fatalf("expected non-credential headers preserved")
	}
}

func TestInspector_EvictsOldestOnOverflow(t *testing.T) {
	i := New(WithMaxTransactions(2), WithEnabled(true))
	i.Record(sampleTx("/1"))
	i.Record(sampleTx("/2"))
	i.Record(sampleTx("/3"))

	snap := i.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d transactions, want 2", len(snap))
	}
	if snap[0].RequestURL != "/2" || snap[1].RequestURL != "/3" {
		t.Fatalf("expected oldest entry evicted, got %+v", snap)
	}
}

func TestInspector_ClearEmptiesBuffer(t *testing.T) {
	i := New(WithEnabled(true))
	i.Record(sampleTx("/1"))
	i.Clear()
	if len(i.Snapshot()) != 0 {
		t.Fatalf("expected empty buffer after Clear")
	}
}

func TestExportHAR_ProducesOneEntryPerTransaction(t *testing.T) {
	i := New(WithEnabled(true))
	i.Record(sampleTx("/1"))
	i.Record(sampleTx("/2"))

	doc := i.ExportHAR("tollfree", "dev")
	if doc.Log.Version != "1.2" {
		t.Fatalf("got version %q, want 1.2", doc.Log.Version)
	}
	if len(doc.Log.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(doc.Log.Entries))
	}
}
