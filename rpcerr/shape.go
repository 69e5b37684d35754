package rpcerr

// Shape is the serializable error form: {code, message, details?}. It is
// what crosses the transport boundary; Error values never do directly.
type Shape struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Path      string         `json:"path,omitempty"`
	TimeoutMs int64          `json:"timeoutMs,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Issues    []ValidationIssue `json:"issues,omitempty"`
	// kind is not part of the wire shape's public fields but is carried so
	// fromShape can reconstruct the exact variant rather than guessing from
	// the code alone.
	Kind Kind `json:"kind,omitempty"`
}

// ToShape converts any taxonomy member into its wire-serializable shape.
// Round-trips: FromShape(ToShape(e)).Kind() == e.Kind(), and each variant's
// designated key fields survive.
func ToShape(err error) Shape {
	switch e := err.(type) {
	case *CallError:
		return Shape{Kind: KindCall, Code: e.CodeVal, Message: e.Message, Details: e.Details}
	case *TimeoutError:
		return Shape{Kind: KindTimeout, Code: CodeTimeout, Message: e.Error(), Path: e.Path, TimeoutMs: e.TimeoutMs}
	case *CancelledError:
		return Shape{Kind: KindCancelled, Code: CodeCancelled, Message: e.Error(), Path: e.Path, Reason: e.Reason}
	case *ValidationError:
		return Shape{Kind: KindValidation, Code: CodeValidation, Message: e.Error(), Path: e.Path, Issues: e.Issues}
	case *NetworkError:
		// Original is a Go error value with no wire representation; only its
		// message crosses, so FromShape reconstructs a NetworkError with
		// Original unset.
		msg := ""
		if e.Original != nil {
			msg = e.Original.Error()
		}
		return Shape{Kind: KindNetwork, Code: CodeNetwork, Message: msg, Path: e.Path}
	default:
		return Shape{Kind: KindCall, Code: CodeUnknown, Message: errString(err)}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FromShape reconstructs a typed Error from its wire shape, preferring the
// explicit Kind tag when present and falling back to the virtual-code
// mapping for shapes produced by a peer that doesn't send Kind.
func FromShape(s Shape) error {
	kind := s.Kind
	if kind == "" {
		kind = kindFromCode(s.Code)
	}
	switch kind {
	case KindTimeout:
		return &TimeoutError{Path: s.Path, TimeoutMs: s.TimeoutMs}
	case KindCancelled:
		return &CancelledError{Path: s.Path, Reason: s.Reason}
	case KindValidation:
		return &ValidationError{Path: s.Path, Issues: s.Issues}
	case KindNetwork:
		return &NetworkError{Path: s.Path}
	default:
		return &CallError{CodeVal: s.Code, Message: s.Message, Details: s.Details}
	}
}

func kindFromCode(code string) Kind {
	switch code {
	case CodeTimeout:
		return KindTimeout
	case CodeCancelled:
		return KindCancelled
	case CodeValidation:
		return KindValidation
	case CodeNetwork:
		return KindNetwork
	default:
		return KindCall
	}
}
