// Package token encodes the continuation state carried by inline keyboard
// buttons. The transport is stateless, so every button holds everything the
// engine needs to resume: what the press means, which item it refers to and,
// for answer buttons, the chosen and expected values.
package token

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what pressing a button resumes.
type Kind string

const (
	// KindStart begins a quiz in a category.
	KindStart Kind = "start"
	// KindAnswer resolves a multiple-choice answer for a quiz item.
	KindAnswer Kind = "ans"
	// KindNext continues the quiz with a fresh item from the same category.
	KindNext Kind = "next"
	// KindStop ends the quiz and shows the progress summary.
	KindStop Kind = "stop"
	// KindRead presents a passage's question at the user's current cursor.
	KindRead Kind = "read"
	// KindReadAnswer resolves an answer to one passage question.
	KindReadAnswer Kind = "rans"
)

const (
	separator  = "|"
	fieldCount = 6
)

// Token carries the full state of one decision point. A token is valid input
// at any time: stale tokens from old renders must decode cleanly and are
// reconciled against the user's current progress by the engine.
type Token struct {
	Kind     Kind
	Category string
	ItemID   string
	SubIndex int    // question index within a passage
	Chosen   string // the answer this particular button carries
	Expected string // the correct answer, so scoring needs no content lookup
}

// DecodeError reports a malformed token. The engine recovers from it with a
// fallback presentation instead of failing the request.
type DecodeError struct {
	Data   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed token %q: %s", e.Data, e.Reason)
}

// Encode serializes a token into its fixed six-field wire form. Fields must
// not contain the separator; content that does is rejected rather than
// silently corrupted.
func Encode(t Token) (string, error) {
	fields := []string{
		string(t.Kind),
		t.Category,
		t.ItemID,
		strconv.Itoa(t.SubIndex),
		t.Chosen,
		t.Expected,
	}
	for _, f := range fields {
		if strings.Contains(f, separator) {
			return "", fmt.Errorf("token field %q contains reserved separator %q", f, separator)
		}
	}
	return strings.Join(fields, separator), nil
}

// Decode parses the wire form back into a Token. It never defaults a bad
// field: wrong field count, an unknown kind or a non-integer sub-index all
// yield a DecodeError.
func Decode(data string) (Token, error) {
	parts := strings.Split(data, separator)
	if len(parts) != fieldCount {
		return Token{}, &DecodeError{Data: data, Reason: fmt.Sprintf("expected %d fields, got %d", fieldCount, len(parts))}
	}

	kind := Kind(parts[0])
	switch kind {
	case KindStart, KindAnswer, KindNext, KindStop, KindRead, KindReadAnswer:
	default:
		return Token{}, &DecodeError{Data: data, Reason: fmt.Sprintf("unknown kind %q", parts[0])}
	}

	sub, err := strconv.Atoi(parts[3])
	if err != nil {
		return Token{}, &DecodeError{Data: data, Reason: fmt.Sprintf("sub-index %q is not an integer", parts[3])}
	}

	return Token{
		Kind:     kind,
		Category: parts[1],
		ItemID:   parts[2],
		SubIndex: sub,
		Chosen:   parts[4],
		Expected: parts[5],
	}, nil
}
