package diag

import (
	"encoding/json"
	"testing"
)

func TestErrorJSON(t *testing.T) {
	e := New(UnmatchedOpen, "unmatched '['").At(Position{Line: 3, Col: 7}).WithChar('[')

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"errorId":"UNMATCHED_OPEN","position":{"line":3,"column":7},"instruction":"[","message":"unmatched '['"}`
	if string(data) != want {
		t.Errorf("json: %s", data)
	}
}

func TestErrorJSONNoPosition(t *testing.T) {
	data, err := json.Marshal(New(UnknownArch, "unknown architecture"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"errorId":"UNKNOWN_ARCH","message":"unknown architecture"}`
	if string(data) != want {
		t.Errorf("json: %s", data)
	}
}

func TestErrorText(t *testing.T) {
	e := New(JumpTooLong, "jump distance %d exceeds %v", 100, "limit").At(Position{Line: 2, Col: 5})

	if got := e.Error(); got != "JUMP_TOO_LONG: jump distance 100 exceeds limit (line 2 column 5)" {
		t.Errorf("text: %v", got)
	}
}

func TestErrsFlatten(t *testing.T) {
	var es Errors

	if es.Err() != nil {
		t.Errorf("empty: %v", es.Err())
	}

	one := New(UnmatchedClose, "unmatched ']'")
	es = append(es, one)

	if es.Err() != one {
		t.Errorf("one: %v", es.Err())
	}

	es = append(es, New(UnmatchedClose, "unmatched ']'"))

	if _, ok := es.Err().(Errors); !ok {
		t.Errorf("many: %v", es.Err())
	}
}
