package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondErrorBody(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondErrorBody(resp, http.StatusConflict, ErrorBody{Error: "busy", Kind: "busy"})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Error != "busy" || body.Kind != "busy" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	if err := SendSSEEvent(resp, resp, "utterances", "evt-1", map[string]string{"npcName": "Aria"}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}

	want := "id: evt-1\nevent: utterances\ndata: {\"npcName\":\"Aria\"}\n\n"
	if got := resp.Body.String(); got != want {
		t.Fatalf("unexpected frame: %q", got)
	}
	if !resp.Flushed {
		t.Fatal("expected flush")
	}
}
