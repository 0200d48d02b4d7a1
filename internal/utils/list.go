package utils

func IsStringInSlice(s string, slice []string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// UnionStrings appends the members of add that are not yet present in base,
// preserving order of first appearance.
func UnionStrings(base []string, add []string) []string {
	result := make([]string, 0, len(base)+len(add))
	result = append(result, base...)
	for _, v := range add {
		if !IsStringInSlice(v, result) {
			result = append(result, v)
		}
	}
	return result
}
