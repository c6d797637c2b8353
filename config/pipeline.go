package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Extractor types. Each produces one named value per run; see package
// extract for the engine.
const (
	ExtractText           = "text"
	ExtractInnerText      = "innerText"
	ExtractAttribute      = "attribute"
	ExtractValue          = "value"
	ExtractOptions        = "options"
	ExtractHTML           = "html"
	ExtractOuterHTML      = "outerHtml"
	ExtractCount          = "count"
	ExtractExists         = "exists"
	ExtractURL            = "url"
	ExtractTitle          = "title"
	ExtractXPath          = "xpath"
	ExtractEvaluate       = "evaluate"
	ExtractJSON           = "json"
	ExtractJSONFromScript = "jsonFromScript"
	ExtractScreenshot     = "screenshot"
)

// Extractor declares one value to pull out of the loaded page.
type Extractor struct {
	Name        string          `json:"name" yaml:"name"`
	Type        string          `json:"type" yaml:"type"`
	Selector    string          `json:"selector,omitempty" yaml:"selector,omitempty"`
	XPath       bool            `json:"xpath,omitempty" yaml:"xpath,omitempty"`
	Attribute   string          `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Path        string          `json:"path,omitempty" yaml:"path,omitempty"`
	Script      string          `json:"script,omitempty" yaml:"script,omitempty"`
	CheckFrames bool            `json:"checkFrames,omitempty" yaml:"checkFrames,omitempty"`
	Default     any             `json:"default,omitempty" yaml:"default,omitempty"`
	Transform   string          `json:"transform,omitempty" yaml:"transform,omitempty"`
	Filter      map[string]any  `json:"filter,omitempty" yaml:"filter,omitempty"`
	Transforms  []TransformSpec `json:"transforms,omitempty" yaml:"transforms,omitempty"`
	Comparator  string          `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Threshold   *float64        `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// RequiresSelector reports whether this extractor type needs a selector.
func (e *Extractor) RequiresSelector() bool {
	switch e.Type {
	case ExtractURL, ExtractTitle, ExtractEvaluate, ExtractJSON,
		ExtractJSONFromScript, ExtractScreenshot:
		return false
	}
	return true
}

// TransformChain resolves the ordered transform list for this extractor:
// either the single `transform` (with options under `filter`) or the
// `transforms` list.
func (e *Extractor) TransformChain() []TransformSpec {
	if len(e.Transforms) > 0 {
		return e.Transforms
	}
	if e.Transform != "" {
		return []TransformSpec{{Type: e.Transform, Options: e.Filter}}
	}
	return nil
}

// TransformSpec is one step of a transform chain. In the source document it
// is either a bare string (name, no options) or an object {type, ...options}.
type TransformSpec struct {
	Type    string
	Options map[string]any
}

// UnmarshalJSON accepts both the string and object forms.
func (t *TransformSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Type = name
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	return t.fromMap(obj)
}

// UnmarshalYAML accepts both the string and object forms.
func (t *TransformSpec) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err == nil {
		t.Type = name
		return nil
	}
	var obj map[string]any
	if err := node.Decode(&obj); err != nil {
		return err
	}
	return t.fromMap(obj)
}

func (t *TransformSpec) fromMap(obj map[string]any) error {
	name, _ := obj["type"].(string)
	if name == "" {
		return fmt.Errorf("transform object missing type: %v", obj)
	}
	t.Type = name
	t.Options = make(map[string]any, len(obj)-1)
	for k, v := range obj {
		if k == "type" {
			continue
		}
		t.Options[k] = v
	}
	return nil
}

// MarshalJSON writes the compact string form when there are no options, so
// content hashing is stable for both input spellings.
func (t TransformSpec) MarshalJSON() ([]byte, error) {
	if len(t.Options) == 0 {
		return json.Marshal(t.Type)
	}
	obj := make(map[string]any, len(t.Options)+1)
	for k, v := range t.Options {
		obj[k] = v
	}
	obj["type"] = t.Type
	return json.Marshal(obj)
}

// Action types; see package action for the engine.
const (
	ActionWait              = "wait"
	ActionWaitForSelector   = "waitForSelector"
	ActionWaitForXPath      = "waitForXPath"
	ActionWaitForNavigation = "waitForNavigation"
	ActionClick             = "click"
	ActionType              = "type"
	ActionTypeSlowly        = "typeSlowly"
	ActionPressKey          = "pressKey"
	ActionSelect            = "select"
	ActionHover             = "hover"
	ActionScroll            = "scroll"
	ActionEvaluate          = "evaluate"
	ActionScreenshot        = "screenshot"
	ActionSetVariable       = "setVariable"
	ActionLogin             = "login"
)

// Action is one step of the scripted interaction run before extraction.
type Action struct {
	Type string `json:"type" yaml:"type"`

	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	XPath    string `json:"xpath,omitempty" yaml:"xpath,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	Script   string `json:"script,omitempty" yaml:"script,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`

	// wait / typeSlowly / timeouts, all in milliseconds.
	Ms         int64 `json:"ms,omitempty" yaml:"ms,omitempty"`
	KeyDelayMs int64 `json:"keyDelay,omitempty" yaml:"keyDelay,omitempty"`
	TimeoutMs  int64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// scroll target when no selector is given.
	X int `json:"x,omitempty" yaml:"x,omitempty"`
	Y int `json:"y,omitempty" yaml:"y,omitempty"`

	// login composite. Any subset may be omitted.
	UsernameSelector string `json:"usernameSelector,omitempty" yaml:"usernameSelector,omitempty"`
	Username         string `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordSelector string `json:"passwordSelector,omitempty" yaml:"passwordSelector,omitempty"`
	Password         string `json:"password,omitempty" yaml:"password,omitempty"`
	SubmitSelector   string `json:"submitSelector,omitempty" yaml:"submitSelector,omitempty"`

	If          *Condition `json:"if,omitempty" yaml:"if,omitempty"`
	Optional    bool       `json:"optional,omitempty" yaml:"optional,omitempty"`
	DelayMs     int64      `json:"delay,omitempty" yaml:"delay,omitempty"`
	CheckFrames *bool      `json:"checkFrames,omitempty" yaml:"checkFrames,omitempty"`
}

// Condition types for Action.If.
const (
	CondExists       = "exists"
	CondNotExists    = "notExists"
	CondTextContains = "textContains"
	CondVariable     = "variable"
	CondEvaluate     = "evaluate"
)

// Condition gates an action. Unknown types pass.
type Condition struct {
	Type     string `json:"type" yaml:"type"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Script   string `json:"script,omitempty" yaml:"script,omitempty"`
}
