package differ

// classifyTypeChange decides whether changing a declared type from one
// primitive to another breaks consumers. Widening integer to number keeps
// every existing value valid; the reverse narrows the domain. Unknown pairs
// report low confidence so the delta can be flagged for review.
func classifyTypeChange(from, to string) (breaking, confident bool) {
	if from == to {
		return false, true
	}
	switch {
	case from == "integer" && to == "number":
		return false, true
	case from == "number" && to == "integer":
		return true, true
	}
	if isKnownPrimitive(from) && isKnownPrimitive(to) {
		return true, true
	}
	return false, false
}

func isKnownPrimitive(t string) bool {
	switch t {
	case "string", "integer", "number", "boolean", "array", "object":
		return true
	}
	return false
}
