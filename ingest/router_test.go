package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/onnwee/clip-tender/backend/fetcher"
	"github.com/onnwee/clip-tender/backend/queue"
)

type fakeSender struct {
	mu      sync.Mutex
	batches [][]queue.Message
	err     error
}

func (f *fakeSender) SendBatch(ctx context.Context, msgs []queue.Message) error {
	return f.record(msgs)
}

func (f *fakeSender) SendChunked(ctx context.Context, msgs []queue.Message) error {
	return f.record(msgs)
}

func (f *fakeSender) record(msgs []queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]queue.Message, len(msgs))
	copy(cp, msgs)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSender) sent() []queue.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []queue.Message
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

type fakeTranslator struct {
	fn func(texts []string, lang string) ([]string, error)
}

func (f *fakeTranslator) Translate(ctx context.Context, texts []string, lang string) ([]string, error) {
	return f.fn(texts, lang)
}

type fakeDiscord struct {
	sends   []string
	deletes []string
	sendErr error
}

func (f *fakeDiscord) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends = append(f.sends, channelID+":"+content)
	return "msg-1", nil
}

func (f *fakeDiscord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.deletes = append(f.deletes, channelID+":"+messageID)
	return nil
}

type fakeFetcher struct {
	res   *fetcher.Result
	err   error
	calls []queue.FetchClipsPayload
}

func (f *fakeFetcher) FetchNextBatch(ctx context.Context, batchSize int, memberType string, maxQuota int) (*fetcher.Result, error) {
	f.calls = append(f.calls, queue.FetchClipsPayload{BatchSize: batchSize, MemberType: memberType, MaxQuotaUsage: maxQuota})
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func mustMsg(t *testing.T, kind queue.Kind, payload any) queue.Message {
	t.Helper()
	m, err := queue.New(kind, payload)
	if err != nil {
		t.Fatalf("build %s message: %v", kind, err)
	}
	return m
}

func TestRouteEmptyBatch(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil, nil)
	if err := r.Route(context.Background(), nil); err != nil {
		t.Fatalf("Route(empty) = %v", err)
	}
}

func TestRouteDropsUnknownKind(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil, nil)
	msgs := []queue.Message{
		{Kind: "mystery-kind", Data: []byte(`{"kind":"mystery-kind","x":1}`)},
		{Kind: "", Data: []byte(`{"x":2}`)},
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v, want nil (unknown kinds are dropped, not failed)", err)
	}
}

func TestTranslateStreamsPartialSuccess(t *testing.T) {
	sender := &fakeSender{}
	tr := &fakeTranslator{fn: func(texts []string, lang string) ([]string, error) {
		if lang == "de" {
			return nil, fmt.Errorf("translator unavailable")
		}
		out := make([]string, len(texts))
		for i, s := range texts {
			out[i] = lang + ":" + s
		}
		return out, nil
	}}
	r := NewRouter(nil, sender, tr, nil, nil)

	msgs := []queue.Message{
		mustMsg(t, queue.KindTranslateStream, queue.TranslateStreamPayload{
			RawID: "s1", Title: "hello", TargetLanguageCode: "de",
		}),
		mustMsg(t, queue.KindTranslateStream, queue.TranslateStreamPayload{
			RawID: "s2", Title: "world", Description: "desc", TargetLanguageCode: "fr",
		}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v, want nil (failed group is skipped)", err)
	}

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("re-enqueued %d messages, want 1 (fr only)", len(sent))
	}
	if sent[0].Kind != queue.KindUpsertStream {
		t.Fatalf("re-enqueued kind = %s, want %s", sent[0].Kind, queue.KindUpsertStream)
	}
	var p queue.UpsertStreamPayload
	if err := json.Unmarshal(sent[0].Data, &p); err != nil {
		t.Fatalf("decode re-enqueued payload: %v", err)
	}
	if p.RawID != "s2" || p.Title != "fr:world" || p.Description != "fr:desc" || p.LanguageCode != "fr" {
		t.Fatalf("re-enqueued payload = %+v", p)
	}
}

func TestTranslateCreatorsGroupsByLanguage(t *testing.T) {
	sender := &fakeSender{}
	var calls []string
	tr := &fakeTranslator{fn: func(texts []string, lang string) ([]string, error) {
		calls = append(calls, fmt.Sprintf("%s/%d", lang, len(texts)))
		out := make([]string, len(texts))
		copy(out, texts)
		return out, nil
	}}
	r := NewRouter(nil, sender, tr, nil, nil)

	msgs := []queue.Message{
		mustMsg(t, queue.KindTranslateCreator, queue.TranslateCreatorPayload{ID: "c1", Name: "a", TargetLanguageCode: "es"}),
		mustMsg(t, queue.KindTranslateCreator, queue.TranslateCreatorPayload{ID: "c2", Name: "b", TargetLanguageCode: "es"}),
		mustMsg(t, queue.KindTranslateCreator, queue.TranslateCreatorPayload{ID: "c3", Name: "c", TargetLanguageCode: "ja"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("translator called %d times, want 2 (one per language)", len(calls))
	}
	seen := map[string]bool{}
	for _, c := range calls {
		seen[c] = true
	}
	// Two creators in the es group means four texts (name+description each).
	if !seen["es/4"] || !seen["ja/2"] {
		t.Fatalf("translator calls = %v, want es/4 and ja/2", calls)
	}
	if got := len(sender.sent()); got != 3 {
		t.Fatalf("re-enqueued %d upserts, want 3", got)
	}
}

func TestTranslateSkipsInvalidSubBatch(t *testing.T) {
	called := false
	tr := &fakeTranslator{fn: func(texts []string, lang string) ([]string, error) {
		called = true
		return texts, nil
	}}
	r := NewRouter(nil, &fakeSender{}, tr, nil, nil)

	// Missing targetLanguageCode fails validation.
	msgs := []queue.Message{
		{Kind: queue.KindTranslateStream, Data: []byte(`{"kind":"translate-stream","rawId":"s1","title":"x"}`)},
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v, want nil (invalid sub-batch is skipped)", err)
	}
	if called {
		t.Fatal("translator called for an invalid payload")
	}
}

// One invalid message poisons its whole kind sub-batch: the valid sibling must
// not be translated or re-enqueued either. Other kinds in the same delivery
// are unaffected.
func TestInvalidPayloadDropsWholeSubBatch(t *testing.T) {
	called := 0
	tr := &fakeTranslator{fn: func(texts []string, lang string) ([]string, error) {
		called++
		return texts, nil
	}}
	d := &fakeDiscord{}
	sender := &fakeSender{}
	r := NewRouter(nil, sender, tr, d, nil)

	msgs := []queue.Message{
		{Kind: queue.KindTranslateStream, Data: []byte(`{"kind":"translate-stream","rawId":"s1","title":"x"}`)},
		mustMsg(t, queue.KindTranslateStream, queue.TranslateStreamPayload{RawID: "s2", Title: "y", TargetLanguageCode: "fr"}),
		mustMsg(t, queue.KindDiscordSendMessage, queue.DiscordSendPayload{ChannelID: "ch1", Content: "hello"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v, want nil", err)
	}
	if called != 0 {
		t.Fatalf("translator called %d time(s) for a sub-batch with an invalid payload", called)
	}
	if len(sender.sent()) != 0 {
		t.Fatalf("re-enqueued %d batches from a dropped sub-batch", len(sender.sent()))
	}
	if len(d.sends) != 1 {
		t.Fatalf("discord sends = %d, want 1 (sibling kinds keep processing)", len(d.sends))
	}
}

func TestTranslateWithoutTranslatorDropsBatch(t *testing.T) {
	sender := &fakeSender{}
	r := NewRouter(nil, sender, nil, nil, nil)
	msgs := []queue.Message{
		mustMsg(t, queue.KindTranslateStream, queue.TranslateStreamPayload{RawID: "s1", Title: "x", TargetLanguageCode: "de"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v, want nil", err)
	}
	if len(sender.sent()) != 0 {
		t.Fatal("messages re-enqueued without a translator")
	}
}

func TestDiscordSendAndDelete(t *testing.T) {
	d := &fakeDiscord{}
	r := NewRouter(nil, nil, nil, d, nil)
	msgs := []queue.Message{
		mustMsg(t, queue.KindDiscordSendMessage, queue.DiscordSendPayload{ChannelID: "ch1", Content: "new clip!"}),
		mustMsg(t, queue.KindDeleteMessageInChannel, queue.DeleteMessagePayload{ChannelID: "ch2", MessageID: "m9"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v", err)
	}
	if len(d.sends) != 1 || d.sends[0] != "ch1:new clip!" {
		t.Fatalf("sends = %v", d.sends)
	}
	if len(d.deletes) != 1 || d.deletes[0] != "ch2:m9" {
		t.Fatalf("deletes = %v", d.deletes)
	}
}

func TestDiscordSendFailureDoesNotFailDelivery(t *testing.T) {
	d := &fakeDiscord{sendErr: fmt.Errorf("rate limited")}
	r := NewRouter(nil, nil, nil, d, nil)
	msgs := []queue.Message{
		mustMsg(t, queue.KindDiscordSendMessage, queue.DiscordSendPayload{ChannelID: "ch1", Content: "x"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v, want nil (sends are at-most-once)", err)
	}
}

func TestFetchClipsDelegatesToFetcher(t *testing.T) {
	f := &fakeFetcher{res: &fetcher.Result{}}
	r := NewRouter(nil, &fakeSender{}, nil, nil, f)
	msgs := []queue.Message{
		mustMsg(t, queue.KindFetchClipsByCreator, queue.FetchClipsPayload{BatchSize: 30, MaxQuotaUsage: 500, MemberType: "vtuber"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("fetcher called %d times, want 1", len(f.calls))
	}
	got := f.calls[0]
	if got.BatchSize != 30 || got.MaxQuotaUsage != 500 || got.MemberType != "vtuber" {
		t.Fatalf("fetcher args = %+v", got)
	}
}

func TestFetchClipsRequeuesWhenMoreRemain(t *testing.T) {
	f := &fakeFetcher{res: &fetcher.Result{HasMore: true}}
	sender := &fakeSender{}
	r := NewRouter(nil, sender, nil, nil, f)
	orig := mustMsg(t, queue.KindFetchClipsByCreator, queue.FetchClipsPayload{BatchSize: 10})
	if err := r.Route(context.Background(), []queue.Message{orig}); err != nil {
		t.Fatalf("Route = %v", err)
	}
	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("re-enqueued %d messages, want 1 follow-up pass", len(sent))
	}
	if string(sent[0].Data) != string(orig.Data) {
		t.Fatalf("follow-up message = %s, want original payload %s", sent[0].Data, orig.Data)
	}
}

func TestFetchClipsErrorFailsDelivery(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("details call failed")}
	r := NewRouter(nil, nil, nil, nil, f)
	msgs := []queue.Message{
		mustMsg(t, queue.KindFetchClipsByCreator, queue.FetchClipsPayload{BatchSize: 5}),
	}
	if err := r.Route(context.Background(), msgs); err == nil {
		t.Fatal("Route = nil, want error so the delivery is redelivered")
	}
}

func TestRouteHandlerOrder(t *testing.T) {
	var seq []string
	tr := &fakeTranslator{fn: func(texts []string, lang string) ([]string, error) {
		seq = append(seq, "translate:"+lang)
		return texts, nil
	}}
	d := &recordingDiscord{seq: &seq}
	f := &seqFetcher{seq: &seq}
	r := NewRouter(nil, &fakeSender{}, tr, d, f)

	// Submit in reverse of the expected handling order.
	msgs := []queue.Message{
		mustMsg(t, queue.KindFetchClipsByCreator, queue.FetchClipsPayload{BatchSize: 1}),
		mustMsg(t, queue.KindTranslateStream, queue.TranslateStreamPayload{RawID: "s1", Title: "x", TargetLanguageCode: "fr"}),
		mustMsg(t, queue.KindDiscordSendMessage, queue.DiscordSendPayload{ChannelID: "ch", Content: "c"}),
		mustMsg(t, queue.KindTranslateCreator, queue.TranslateCreatorPayload{ID: "c1", Name: "n", TargetLanguageCode: "de"}),
	}
	if err := r.Route(context.Background(), msgs); err != nil {
		t.Fatalf("Route = %v", err)
	}
	want := []string{"translate:de", "discord-send", "translate:fr", "fetch"}
	if len(seq) != len(want) {
		t.Fatalf("sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", seq, want)
		}
	}
}

type recordingDiscord struct{ seq *[]string }

func (r *recordingDiscord) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	*r.seq = append(*r.seq, "discord-send")
	return "m1", nil
}

func (r *recordingDiscord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	*r.seq = append(*r.seq, "discord-delete")
	return nil
}

type seqFetcher struct{ seq *[]string }

func (s *seqFetcher) FetchNextBatch(ctx context.Context, batchSize int, memberType string, maxQuota int) (*fetcher.Result, error) {
	*s.seq = append(*s.seq, "fetch")
	return &fetcher.Result{}, nil
}
