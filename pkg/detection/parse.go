package detection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/menta2k/ghostsnap/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// wrapperKeys are tried first when the reply is an object instead of an array
var wrapperKeys = []string{"regions", "boxes", "detections", "areas", "results"}

// ParseBoxes extracts proportional boxes from a model reply. Entries without
// four numeric coordinates are skipped; coordinates are clamped to [0,1].
// width and height are the size of the image the model saw, used when a
// model answers in pixels; pass 0 when unknown. An empty reply is an empty
// result; a reply without a JSON array is ErrMalformedResponse.
func ParseBoxes(raw string, width, height int) ([]types.Box, error) {
	raw = sanitizeModelJSON(raw)
	if raw == "" {
		return []types.Box{}, nil
	}

	items, err := boxArray(raw)
	if err != nil {
		return nil, err
	}

	boxes := make([]types.Box, 0, len(items))
	for _, item := range items {
		b, ok := decodeBox(item)
		if !ok {
			continue
		}
		boxes = append(boxes, normalizeBox(b, width, height))
	}
	return boxes, nil
}

// boxArray finds the list of candidate entries in the reply
func boxArray(raw string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	}

	if strings.HasPrefix(raw, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}

		// a single bare box
		if _, ok := decodeBox(json.RawMessage(raw)); ok {
			return []json.RawMessage{json.RawMessage(raw)}, nil
		}

		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range slices.Concat(wrapperKeys, keys) {
			v, ok := obj[k]
			if !ok {
				continue
			}
			items = nil
			if err := json.Unmarshal(v, &items); err == nil && items != nil {
				return items, nil
			}
		}
		return nil, fmt.Errorf("%w: object without a box list", ErrMalformedResponse)
	}

	return nil, fmt.Errorf("%w: %.40q", ErrMalformedResponse, raw)
}

// decodeBox reads one entry. width/height may be abbreviated to w/h.
func decodeBox(item json.RawMessage) (types.Box, bool) {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil {
		return types.Box{}, false
	}

	num := func(keys ...string) (float64, bool) {
		for _, k := range keys {
			if v, ok := fields[k].(float64); ok {
				return v, true
			}
		}
		return 0, false
	}

	x, okX := num("x")
	y, okY := num("y")
	w, okW := num("width", "w")
	h, okH := num("height", "h")
	if !okX || !okY || !okW || !okH {
		return types.Box{}, false
	}

	label, _ := fields["label"].(string)
	return types.Box{X: x, Y: y, Width: w, Height: h, Label: label}, true
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost [...] or {...}, whichever opens first
	open := strings.IndexAny(raw, "[{")
	if open >= 0 {
		closer := "]"
		if raw[open] == '{' {
			closer = "}"
		}
		if end := strings.LastIndex(raw, closer); end > open {
			raw = raw[open : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
