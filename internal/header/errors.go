package header

// Kind classifies a corrupt header.
type Kind uint8

const (
	// MagicMismatch means the magic tag differs from the expected one.
	MagicMismatch Kind = iota + 1
	// EndiannessInvalid means the marker matches neither byte order.
	EndiannessInvalid
	// WrongEndianness means the file was written on a host of the other byte order.
	WrongEndianness
	// Truncated means the file is shorter than the header.
	Truncated
	// PaddingMismatch means the padding field does not align the body,
	// typically because the record size differs from the one the file was created with.
	PaddingMismatch
	// VersionMismatch means the format or data version differs (strict mode only).
	VersionMismatch
)

func (k Kind) String() string {
	switch k {
	case MagicMismatch:
		return "magic mismatch"
	case EndiannessInvalid:
		return "endianness marker invalid"
	case WrongEndianness:
		return "wrong endianness"
	case Truncated:
		return "truncated"
	case PaddingMismatch:
		return "padding mismatch"
	case VersionMismatch:
		return "version mismatch"
	default:
		return "unknown"
	}
}

// CorruptError reports a header that cannot be used.
//
// errors.Is matches any *CorruptError with the same Kind, and ErrCorrupt
// matches every kind.
type CorruptError struct {
	Kind   Kind
	Detail string
}

func (e *CorruptError) Error() string {
	if e.Kind == 0 {
		return "header corrupt"
	}
	if e.Detail == "" {
		return "header corrupt: " + e.Kind.String()
	}
	return "header corrupt: " + e.Kind.String() + ": " + e.Detail
}

// Is implements errors.Is.
func (e *CorruptError) Is(target error) bool {
	t, ok := target.(*CorruptError)
	if !ok {
		return false
	}
	return t.Kind == 0 || t.Kind == e.Kind
}

var (
	// ErrCorrupt matches every CorruptError.
	ErrCorrupt error = &CorruptError{}

	ErrMagicMismatch     error = &CorruptError{Kind: MagicMismatch}
	ErrEndiannessInvalid error = &CorruptError{Kind: EndiannessInvalid}
	ErrWrongEndianness   error = &CorruptError{Kind: WrongEndianness}
	ErrTruncated         error = &CorruptError{Kind: Truncated}
	ErrPaddingMismatch   error = &CorruptError{Kind: PaddingMismatch}
	ErrVersionMismatch   error = &CorruptError{Kind: VersionMismatch}
)
