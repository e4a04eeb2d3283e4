package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"messagehub/internal/config"
)

type fakeModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestWordList(t *testing.T) {
	wl := NewWordList([]string{"darn", "Heck Off", "  "})
	ctx := context.Background()
	cases := []struct {
		text string
		want bool
	}{
		{"hello there", true},
		{"well DARN it", false},
		{"darned good", true},
		{"please heck   off!", false},
		{"heckoff", true},
	}
	for _, tc := range cases {
		v, err := wl.Check(ctx, tc.text)
		if err != nil {
			t.Fatalf("Check(%q): %v", tc.text, err)
		}
		if v.Allowed != tc.want {
			t.Fatalf("Check(%q) allowed=%v, want %v", tc.text, v.Allowed, tc.want)
		}
	}
}

func TestLLMVerdicts(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		reply  string
		allow  bool
		reason string
	}{
		{"ALLOW", true, ""},
		{"  allow\n", true, ""},
		{"BLOCK: harassment", false, "harassment"},
		{"block", false, "message rejected by moderation"},
		{"unsure", true, ""},
	}
	for _, tc := range cases {
		fm := &fakeModel{reply: tc.reply}
		v, err := NewLLM(fm).Check(ctx, "some text")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if v.Allowed != tc.allow || v.Reason != tc.reason {
			t.Fatalf("reply %q: got %+v", tc.reply, v)
		}
		if len(fm.seen) != 2 || fm.seen[0].Role != schema.System || fm.seen[1].Content != "some text" {
			t.Fatalf("unexpected prompt: %+v", fm.seen)
		}
	}
}

func TestChainFailsOpenAndStopsAtFirstBlock(t *testing.T) {
	ctx := context.Background()
	chain := Chain{
		NewLLM(&fakeModel{err: errors.New("timeout")}),
		NewWordList([]string{"spam"}),
		NewLLM(&fakeModel{reply: "BLOCK: should not be reached"}),
	}
	v, err := chain.Check(ctx, "buy spam now")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Allowed || v.Reason != "message contains offensive language" {
		t.Fatalf("expected word list block, got %+v", v)
	}

	v, err = Chain{NewLLM(&fakeModel{err: errors.New("timeout")})}.Check(ctx, "fine")
	if err != nil || !v.Allowed {
		t.Fatalf("expected fail-open allow, got %+v %v", v, err)
	}
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	providers := map[string]config.ProviderConfig{"openai": {Model: "gpt-4o-mini"}}
	if _, err := NewChatModel(context.Background(), "mistral", "", "k", providers); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if _, err := NewChatModel(context.Background(), "openai", "", "", providers); err == nil {
		t.Fatalf("expected missing api key error")
	}
}

func TestFromConfigDisabled(t *testing.T) {
	checker, err := FromConfig(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	v, err := checker.Check(context.Background(), "anything")
	if err != nil || !v.Allowed {
		t.Fatalf("disabled moderation should allow, got %+v %v", v, err)
	}
}
