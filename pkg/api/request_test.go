package api

import (
	"encoding/json"
	"testing"
)

func TestInputText_PlainString(t *testing.T) {
	var req RunRequest
	if err := json.Unmarshal([]byte(`{"input":"fibonacci please"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Input != "fibonacci please" {
		t.Errorf("input = %q", req.Input)
	}
}

func TestInputText_MessageArray(t *testing.T) {
	body := `{"input":[
		{"role":"user","content":"first line"},
		{"role":"assistant","content":"ignored"},
		{"role":"user","content":"second line"}
	]}`

	var req RunRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Input != "first line\nsecond line" {
		t.Errorf("input = %q", req.Input)
	}
}

func TestInputText_RolelessMessages(t *testing.T) {
	var req RunRequest
	if err := json.Unmarshal([]byte(`{"input":[{"content":"no role"}]}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Input != "no role" {
		t.Errorf("input = %q", req.Input)
	}
}

func TestInputText_RejectsOtherShapes(t *testing.T) {
	var req RunRequest
	if err := json.Unmarshal([]byte(`{"input":42}`), &req); err == nil {
		t.Fatal("expected error for numeric input")
	}
	if err := json.Unmarshal([]byte(`{"input":{"text":"x"}}`), &req); err == nil {
		t.Fatal("expected error for object input")
	}
}
