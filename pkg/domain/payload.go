package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DefaultDelaySeconds is used when a delay node carries a missing or
// corrupt duration.
const DefaultDelaySeconds = 2

// MenuOption is a single selectable entry of a menu node.
type MenuOption struct {
	ID    string `json:"id" mapstructure:"id"`
	Label string `json:"label" mapstructure:"label"`
}

// MenuPayload is the decoded payload of a menu node.
type MenuPayload struct {
	Options []MenuOption `json:"options" mapstructure:"options"`
	UsePoll bool         `json:"usePoll" mapstructure:"usePoll"`
}

// Label returns the node's display text ("data.label"), or empty.
func (n Node) Label() string {
	s, _ := n.Data["label"].(string)
	return s
}

// Menu decodes the menu payload. Malformed entries decode to their zero
// values rather than failing; a missing payload yields no options.
func (n Node) Menu() MenuPayload {
	var p MenuPayload
	if n.Data == nil {
		return p
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p
	}
	_ = dec.Decode(n.Data)
	return p
}

// DelaySeconds returns the coerced duration of a delay node.
//
// The builder has historically emitted the value as a number, a numeric
// string, or free text. Numbers and numeric strings are honored;
// anything else is treated as corrupt and reset to the default.
func (n Node) DelaySeconds() int {
	raw, ok := n.Data["delay"]
	if !ok {
		return DefaultDelaySeconds
	}
	switch v := raw.(type) {
	case int:
		return normalizeDelay(v)
	case int64:
		return normalizeDelay(int(v))
	case float64:
		return normalizeDelay(int(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return normalizeDelay(int(f))
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return normalizeDelay(int(f))
		}
	}
	return DefaultDelaySeconds
}

func normalizeDelay(seconds int) int {
	if seconds <= 0 {
		return DefaultDelaySeconds
	}
	return seconds
}

// MediaURI returns the node's inline media payload as a data URI
// ("data:<mime>;base64,<data>"), or empty when the node has none.
func (n Node) MediaURI() string {
	s, _ := n.Data["media"].(string)
	return s
}

// FileName returns the optional display filename for media nodes.
func (n Node) FileName() string {
	s, _ := n.Data["fileName"].(string)
	return s
}
