// Package browser defines the narrow driver facade the watch pipeline runs
// against, plus two implementations: a Playwright-backed headless browser and
// a browserless static fetcher for http-mode watches. Tests stub these
// interfaces with scripted pages.
package browser

import (
	"strings"
	"time"
)

// LaunchOptions configure the process-wide browser handle.
type LaunchOptions struct {
	Headless bool
	Proxy    *ProxyOptions
}

// ProxyOptions name an upstream proxy, globally or per watch.
type ProxyOptions struct {
	Server   string
	Username string
	Password string
}

// Cookie is pre-added to a context before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	URL    string
}

// ContextOptions configure one isolated browsing context. A context is
// exclusive to a single pipeline run.
type ContextOptions struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
	ExtraHeaders   map[string]string
	Cookies        []Cookie
	Proxy          *ProxyOptions
	// StorageStatePath is loaded into the context when the file exists.
	StorageStatePath string
}

// GotoOptions bound one navigation attempt.
type GotoOptions struct {
	Timeout   time.Duration
	WaitUntil string // "load", "domcontentloaded", "networkidle", "commit"
}

// Browser is the process-wide handle. Only NewContext is called on it
// concurrently.
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated cookie/storage universe owned by one run.
type Context interface {
	NewPage() (Page, error)
	// SaveStorageState persists cookies and local storage for persistSession
	// watches.
	SaveStorageState(path string) error
	Close() error
}

// Page is one tab. Selectors are CSS unless prefixed with "xpath=".
type Page interface {
	Goto(url string, opts GotoOptions) error
	WaitForSelector(selector string, timeout time.Duration) error
	WaitForNavigation(timeout time.Duration) error
	WaitForTimeout(d time.Duration)

	QueryAll(selector string) ([]Element, error)
	Evaluate(script string) (any, error)
	Frames() []Frame
	URL() string
	Title() (string, error)

	Screenshot(path string, fullPage bool) error
	// BlockResources installs a request filter aborting the named resource
	// types (image, stylesheet, font, media, script, ...).
	BlockResources(types []string) error

	Click(selector string) error
	Fill(selector, value string) error
	TypeText(selector, text string, perKeyDelay time.Duration) error
	Press(key string) error
	SelectOption(selector, value string) error
	Hover(selector string) error
	ScrollIntoView(selector string) error
	ScrollBy(x, y int) error

	Close() error
}

// Frame is a child frame probed when checkFrames is set.
type Frame interface {
	QueryAll(selector string) ([]Element, error)
	Click(selector string) error
}

// Element is one matched node.
type Element interface {
	TextContent() (string, error)
	InnerText() (string, error)
	GetAttribute(name string) (string, error)
	InnerHTML() (string, error)
	OuterHTML() (string, error)
	InputValue() (string, error)
}

const xpathPrefix = "xpath="

// NormalizeSelector rewrites a selector into the facade's convention:
// explicit xpath flag, an existing xpath= prefix, or a leading // all mean
// XPath; everything else is CSS.
func NormalizeSelector(selector string, xpath bool) string {
	if strings.HasPrefix(selector, xpathPrefix) {
		return selector
	}
	if xpath || strings.HasPrefix(selector, "//") {
		return xpathPrefix + selector
	}
	return selector
}

// IsXPath reports whether a normalized selector targets XPath.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, xpathPrefix)
}
