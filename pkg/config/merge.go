// Copyright 2021 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"maps"
)

// MergeValues overlays layers key by key: a key in a later layer replaces
// the same key of all earlier ones. Nested objects are replaced, not merged.
// The result is a fresh map, the layers are not modified.
func MergeValues(layers ...map[string]any) map[string]any {
	res := make(map[string]any)
	for _, layer := range layers {
		maps.Copy(res, layer)
	}
	return res
}

// MergeJSONData deep-merges the right JSON object into the left one.
func MergeJSONData(left, right []byte) ([]byte, error) {
	vLeft := map[string]any{}
	if err := json.Unmarshal(left, &vLeft); err != nil {
		return nil, err
	}
	vRight := map[string]any{}
	if len(right) != 0 {
		if err := json.Unmarshal(right, &vRight); err != nil {
			return nil, err
		}
	}
	return json.Marshal(mergeRecursive(vLeft, vRight))
}

func mergeRecursive(left, right any) any {
	vLeft, leftMap := left.(map[string]any)
	vRight, rightMap := right.(map[string]any)
	if !leftMap || !rightMap {
		return right
	}
	for key, val := range vRight {
		if prev, ok := vLeft[key]; ok {
			vLeft[key] = mergeRecursive(prev, val)
		} else {
			vLeft[key] = val
		}
	}
	return vLeft
}
