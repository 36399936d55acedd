package deadcode

// Span is one contiguous run of unreachable source lines inside a
// function, together with the reason control flow can never arrive there.
type Span struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Reason    string `json:"reason"`
}

// exception name -> direct parent in the builtin hierarchy. Only the
// builtins that matter for handler ordering are listed; unknown names are
// treated as unrelated roots.
var exceptionParent = map[string]string{
	"Exception":                "BaseException",
	"KeyboardInterrupt":        "BaseException",
	"SystemExit":               "BaseException",
	"GeneratorExit":            "BaseException",
	"ArithmeticError":          "Exception",
	"ZeroDivisionError":        "ArithmeticError",
	"FloatingPointError":       "ArithmeticError",
	"OverflowError":            "ArithmeticError",
	"AssertionError":           "Exception",
	"AttributeError":           "Exception",
	"BufferError":              "Exception",
	"EOFError":                 "Exception",
	"ImportError":              "Exception",
	"ModuleNotFoundError":      "ImportError",
	"LookupError":              "Exception",
	"IndexError":               "LookupError",
	"KeyError":                 "LookupError",
	"MemoryError":              "Exception",
	"NameError":                "Exception",
	"UnboundLocalError":        "NameError",
	"OSError":                  "Exception",
	"IOError":                  "OSError",
	"EnvironmentError":         "OSError",
	"FileNotFoundError":        "OSError",
	"FileExistsError":          "OSError",
	"PermissionError":          "OSError",
	"IsADirectoryError":        "OSError",
	"NotADirectoryError":       "OSError",
	"InterruptedError":         "OSError",
	"BlockingIOError":          "OSError",
	"BrokenPipeError":          "ConnectionError",
	"ConnectionError":          "OSError",
	"ConnectionAbortedError":   "ConnectionError",
	"ConnectionRefusedError":   "ConnectionError",
	"ConnectionResetError":     "ConnectionError",
	"ChildProcessError":        "OSError",
	"ProcessLookupError":       "OSError",
	"TimeoutError":             "OSError",
	"ReferenceError":           "Exception",
	"RuntimeError":             "Exception",
	"NotImplementedError":      "RuntimeError",
	"RecursionError":           "RuntimeError",
	"StopIteration":            "Exception",
	"StopAsyncIteration":       "Exception",
	"SyntaxError":              "Exception",
	"IndentationError":         "SyntaxError",
	"TabError":                 "IndentationError",
	"SystemError":              "Exception",
	"TypeError":                "Exception",
	"ValueError":               "Exception",
	"UnicodeError":             "ValueError",
	"UnicodeDecodeError":       "UnicodeError",
	"UnicodeEncodeError":       "UnicodeError",
	"UnicodeTranslateError":    "UnicodeError",
	"Warning":                  "Exception",
	"DeprecationWarning":       "Warning",
	"PendingDeprecationWarning": "Warning",
	"UserWarning":              "Warning",
	"RuntimeWarning":           "Warning",
	"FutureWarning":            "Warning",
	"ImportWarning":            "Warning",
	"BytesWarning":             "Warning",
	"ResourceWarning":          "Warning",
}

// covers reports whether an except clause catching "earlier" also catches
// "later". A bare except (empty name) catches everything. Unknown names
// only cover themselves.
func covers(earlier, later string) bool {
	if earlier == "" {
		return true
	}
	if later == "" {
		return false
	}
	for cur := later; cur != ""; cur = exceptionParent[cur] {
		if cur == earlier {
			return true
		}
	}
	return false
}
