package di

import "strings"

// builtinish annotations never point at an injectable collaborator.
var builtinTypes = map[string]bool{
	"int": true, "float": true, "str": true, "bytes": true, "bool": true,
	"bytearray": true, "complex": true, "object": true, "type": true,
	"dict": true, "list": true, "set": true, "frozenset": true,
	"tuple": true, "range": true, "slice": true, "memoryview": true,
	"None": true, "Any": true, "Optional": true, "Union": true,
	"Callable": true, "Iterable": true, "Iterator": true, "Generator": true,
	"Sequence": true, "Mapping": true, "MutableMapping": true,
	"MutableSequence": true, "MutableSet": true, "Collection": true,
	"List": true, "Dict": true, "Set": true, "FrozenSet": true,
	"Tuple": true, "Type": true, "Text": true, "ByteString": true,
	"Awaitable": true, "Coroutine": true, "AsyncIterable": true,
	"AsyncIterator": true, "ContextManager": true, "AsyncContextManager": true,
	"Literal": true, "Final": true, "ClassVar": true, "Annotated": true,
	"Self": true, "NoReturn": true, "Never": true, "Hashable": true,
	"datetime": true, "date": true, "time": true, "timedelta": true,
	"Path": true, "UUID": true, "Decimal": true,
}

// abstractSuffixes mark annotation names that already express a
// capability rather than an implementation.
var abstractSuffixes = []string{
	"Interface", "Protocol", "ABC", "Abstract", "Base", "Port", "Like",
}

// isConcreteType reports whether an annotation names a concrete
// implementation class rather than an abstraction or a plain value type.
func isConcreteType(annotation string) bool {
	name := annotation
	// Unwrap a single generic layer: Optional[Engine] depends on Engine.
	if i := strings.IndexByte(name, '['); i >= 0 {
		outer := lastSegment(strings.TrimSpace(name[:i]))
		inner := strings.TrimSuffix(name[i+1:], "]")
		if builtinTypes[outer] && !strings.ContainsAny(inner, ",[") {
			name = strings.TrimSpace(inner)
		} else {
			name = outer
		}
	}
	name = lastSegment(strings.Trim(name, "\"'"))

	if name == "" || builtinTypes[name] {
		return false
	}
	if name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	if strings.HasPrefix(name, "Abstract") || strings.HasPrefix(name, "Base") {
		return false
	}
	// "IEngine" style interface prefix.
	if len(name) >= 2 && name[0] == 'I' && name[1] >= 'A' && name[1] <= 'Z' {
		return false
	}
	for _, suffix := range abstractSuffixes {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

// looksLikeClassName matches CapWords call targets while sparing
// SHOUT_CASE constants.
func looksLikeClassName(name string) bool {
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	return strings.ToUpper(name) != name || len(name) == 1
}

// isExceptionName filters out exception construction, which belongs in
// raise statements rather than dependency wiring.
func isExceptionName(name string) bool {
	return strings.HasSuffix(name, "Error") ||
		strings.HasSuffix(name, "Exception") ||
		strings.HasSuffix(name, "Warning") ||
		name == "KeyboardInterrupt" || name == "SystemExit" || name == "StopIteration"
}

// locatorNames are method names that perform keyed service lookup or
// singleton access.
var locatorNames = map[string]bool{
	"get_service":  true,
	"get_instance": true,
	"resolve":      true,
	"locate":       true,
	"lookup":       true,
}

// locatorReceivers are receiver names whose .get(...) is a registry
// lookup rather than a dict access.
var locatorReceivers = map[string]bool{
	"container": true,
	"registry":  true,
	"locator":   true,
	"injector":  true,
	"services":  true,
}

// isLocatorCall reports whether a dotted callee is a service-locator or
// singleton lookup.
func isLocatorCall(callee string) bool {
	name := lastSegment(callee)
	if locatorNames[name] {
		return true
	}
	if name != "get" {
		return false
	}
	rest := strings.TrimSuffix(callee, ".get")
	if rest == callee {
		return false
	}
	return locatorReceivers[lastSegment(strings.TrimPrefix(rest, "self."))]
}
