// Package moderation screens message bodies before they are stored.
package moderation

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// Verdict is the outcome of a moderation check.
type Verdict struct {
	Allowed bool
	Reason  string
}

var allow = Verdict{Allowed: true}

// Checker inspects text.
type Checker interface {
	Check(ctx context.Context, text string) (Verdict, error)
}

// Chain runs checkers in order; the first blocking verdict wins.
// A failing checker is logged and skipped.
type Chain []Checker

func (c Chain) Check(ctx context.Context, text string) (Verdict, error) {
	for _, checker := range c {
		if checker == nil {
			continue
		}
		v, err := checker.Check(ctx, text)
		if err != nil {
			slog.WarnContext(ctx, "moderation checker failed, allowing", slog.Any("err", err))
			continue
		}
		if !v.Allowed {
			return v, nil
		}
	}
	return allow, nil
}

// WordList blocks text containing any banned word or phrase, matched on whole words.
type WordList struct {
	phrases []string
}

func NewWordList(words []string) *WordList {
	wl := &WordList{}
	for _, w := range words {
		if norm := normalize(w); norm != "" {
			wl.phrases = append(wl.phrases, norm)
		}
	}
	return wl
}

func (w *WordList) Check(_ context.Context, text string) (Verdict, error) {
	if w == nil || len(w.phrases) == 0 {
		return allow, nil
	}
	padded := " " + normalize(text) + " "
	for _, p := range w.phrases {
		if strings.Contains(padded, " "+p+" ") {
			return Verdict{Allowed: false, Reason: "message contains offensive language"}, nil
		}
	}
	return allow, nil
}

func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
