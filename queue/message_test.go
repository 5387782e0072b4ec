package queue

import (
	"encoding/json"
	"testing"
)

func TestNewMergesKindIntoPayload(t *testing.T) {
	m, err := New(KindUpsertStream, UpsertStreamPayload{RawID: "s1", RawChannelID: "ch1", Title: "live"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Kind != KindUpsertStream {
		t.Fatalf("Kind = %s", m.Kind)
	}
	var obj map[string]any
	if err := json.Unmarshal(m.Data, &obj); err != nil {
		t.Fatalf("unmarshal wire object: %v", err)
	}
	if obj["kind"] != "upsert-stream" || obj["rawId"] != "s1" || obj["title"] != "live" {
		t.Fatalf("wire object = %v", obj)
	}
}

func TestNewRejectsNonObjectPayload(t *testing.T) {
	if _, err := New(KindUpsertStream, []int{1, 2}); err == nil {
		t.Fatal("New accepted a non-object payload")
	}
}

func TestDecodeRecoversKind(t *testing.T) {
	raw := []byte(`{"kind":"upsert-clip","rawId":"c1","rawChannelId":"ch"}`)
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Kind != KindUpsertClip {
		t.Fatalf("Kind = %s", m.Kind)
	}
	if string(m.Data) != string(raw) {
		t.Fatal("Data does not preserve the original bytes")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("Decode accepted garbage")
	}
}

func TestDecodeBatchArray(t *testing.T) {
	raw := []byte(`[{"kind":"upsert-stream","rawId":"s1"},{"kind":"upsert-clip","rawId":"c1"}]`)
	msgs, err := DecodeBatch(raw)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Kind != KindUpsertStream || msgs[1].Kind != KindUpsertClip {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestDecodeBatchBareObject(t *testing.T) {
	msgs, err := DecodeBatch([]byte(`{"kind":"upsert-stream","rawId":"s1"}`))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Kind != KindUpsertStream {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestMessageMarshalIsByteStable(t *testing.T) {
	raw := []byte(`{"kind":"upsert-clip","rawId":"c1","extraField":"preserved"}`)
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatalf("Marshal = %s, want the original bytes %s", out, raw)
	}
}
