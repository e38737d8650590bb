package access

import "strings"

// ShortIDLength is the length of the printable id prefix.
const ShortIDLength = 8

const nationalIDDigits = 11

type IdentifierKind int

const (
	IdentifierFullID IdentifierKind = iota + 1
	IdentifierShortID
	IdentifierNationalID
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierFullID:
		return "full_id"
	case IdentifierShortID:
		return "short_id"
	case IdentifierNationalID:
		return "national_id"
	default:
		return "unknown"
	}
}

// Identifier is a classified participant lookup key.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseIdentifier classifies raw input from a scanner or keyboard.
//
//   - 11 digits, optionally punctuated as 000.000.000-00: a national id (CPF), digits only.
//   - exactly 8 characters: a short id, lowercased for prefix matching.
//   - anything else: a full participant id.
func ParseIdentifier(raw string) (Identifier, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Identifier{}, validationErr(CodeIdentifierRequired, nil)
	}

	if digits, ok := nationalIDFrom(v); ok {
		return Identifier{Kind: IdentifierNationalID, Value: digits}, nil
	}
	if len(v) == ShortIDLength {
		return Identifier{Kind: IdentifierShortID, Value: strings.ToLower(v)}, nil
	}
	return Identifier{Kind: IdentifierFullID, Value: v}, nil
}

// NormalizeNationalID strips CPF punctuation. ok is false unless exactly 11 digits remain.
func NormalizeNationalID(raw string) (string, bool) {
	return nationalIDFrom(strings.TrimSpace(raw))
}

func nationalIDFrom(v string) (string, bool) {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == ' ':
		default:
			return "", false
		}
	}
	if b.Len() != nationalIDDigits {
		return "", false
	}
	return b.String(), true
}
