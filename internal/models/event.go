package models

import (
	"errors"
	"strings"

	"dashshot/internal/program"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type Action string

const (
	ActionClick         Action = "click"
	ActionDblClick      Action = "dblclick"
	ActionChange        Action = "change"
	ActionKeydown       Action = "keydown"
	ActionSelect        Action = "select"
	ActionSubmit        Action = "submit"
	ActionLoad          Action = "load"
	ActionUnload        Action = "unload"
	ActionTotp          Action = "totp"
	ActionRemoveElement Action = "removeElement"
	ActionCustom        Action = "custom"

	ActionGoto       Action = "GOTO"
	ActionViewport   Action = "VIEWPORT"
	ActionNavigation Action = "NAVIGATION"
	ActionScreenshot Action = "SCREENSHOT"
	ActionPause      Action = "PAUSE"
	ActionScroll     Action = "SCROLL"
)

// Event is one recorded interaction. The payload fields used depend on
// Action: Value carries text payloads, Number carries PAUSE milliseconds and
// SCROLL pixels, Width/Height carry VIEWPORT.
type Event struct {
	Action         Action
	FrameID        int
	FrameURL       string
	FrameIndex     int
	FrameSelectors []string
	TabIndex       *int
	IsSecret       bool
	TagName        string
	Selector       string
	Value          string
	Number         int
	Width          int
	Height         int
	Href           string
	KeyCode        int
	Code           string

	// Procedure is set on synthesized custom events only and never
	// serialized.
	Procedure []program.Instruction
}

// IsEmailLike reports whether a non-secret change value looks like an email
// address.
func (e Event) IsEmailLike() bool {
	return e.Action == ActionChange && !e.IsSecret && strings.Contains(e.Value, "@") && strings.Contains(e.Value, ".")
}

func (e *Event) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid event payload")
	}
	r := gjson.ParseBytes(data)

	*e = Event{
		Action:     Action(r.Get("action").String()),
		FrameID:    int(r.Get("frameId").Int()),
		FrameURL:   r.Get("frameUrl").String(),
		FrameIndex: int(r.Get("frameIndex").Int()),
		IsSecret:   r.Get("isSecret").Bool(),
		TagName:    r.Get("tagName").String(),
		Selector:   r.Get("selector").String(),
		Href:       r.Get("href").String(),
		KeyCode:    int(r.Get("keyCode").Int()),
		Code:       r.Get("code").String(),
	}
	if fs := r.Get("frameSelectors"); fs.IsArray() {
		e.FrameSelectors = []string{}
		for _, s := range fs.Array() {
			e.FrameSelectors = append(e.FrameSelectors, s.String())
		}
	}
	if ti := r.Get("tabIndex"); ti.Exists() && ti.Type == gjson.Number {
		idx := int(ti.Int())
		e.TabIndex = &idx
	}

	value := r.Get("value")
	switch e.Action {
	case ActionViewport:
		e.Width = int(value.Get("width").Int())
		e.Height = int(value.Get("height").Int())
	case ActionPause, ActionScroll:
		e.Number = int(value.Int())
	default:
		if value.Type != gjson.Null {
			e.Value = value.String()
		}
	}
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := []byte(`{}`)
	var err error
	set := func(path string, v interface{}) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}

	set("action", string(e.Action))
	if e.FrameID != 0 {
		set("frameId", e.FrameID)
		set("frameUrl", e.FrameURL)
		set("frameIndex", e.FrameIndex)
	} else {
		set("frameId", nil)
	}
	if e.FrameSelectors != nil {
		set("frameSelectors", e.FrameSelectors)
	}
	if e.TabIndex != nil {
		set("tabIndex", *e.TabIndex)
	}
	set("isSecret", e.IsSecret)
	if e.TagName != "" {
		set("tagName", e.TagName)
	}
	if e.Selector != "" {
		set("selector", e.Selector)
	}
	if e.Href != "" {
		set("href", e.Href)
	}
	if e.KeyCode != 0 {
		set("keyCode", e.KeyCode)
	}
	if e.Code != "" {
		set("code", e.Code)
	}

	switch e.Action {
	case ActionViewport:
		set("value.width", e.Width)
		set("value.height", e.Height)
	case ActionPause, ActionScroll:
		set("value", e.Number)
	default:
		if e.Value != "" {
			set("value", e.Value)
		}
	}
	return out, err
}
