package domain

import (
	"dario.cat/mergo"
)

// mergeValueMaps deep-merges src into dst. Nested objects are merged
// recursively, scalars are overridden, slices are appended.
func mergeValueMaps(dst, src map[string]interface{}) error {
	return mergo.Merge(&dst, src,
		mergo.WithOverride,
		mergo.WithAppendSlice)
}
