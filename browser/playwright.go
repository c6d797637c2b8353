package browser

import (
	"os"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pagewatch/pagewatch/errors"
)

// Launch starts the process-wide Playwright browser. Callers own the handle
// for the life of the process and must Close it on shutdown.
func Launch(opts LaunchOptions) (Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start playwright driver")
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Proxy != nil {
		launchOpts.Proxy = toProxy(opts.Proxy)
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, errors.Wrap(err, "failed to launch chromium")
	}

	return &pwBrowser{pw: pw, browser: b}, nil
}

func toProxy(p *ProxyOptions) *playwright.Proxy {
	proxy := &playwright.Proxy{Server: p.Server}
	if p.Username != "" {
		proxy.Username = playwright.String(p.Username)
	}
	if p.Password != "" {
		proxy.Password = playwright.String(p.Password)
	}
	return proxy
}

type pwBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (b *pwBrowser) NewContext(opts ContextOptions) (Context, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		}
	}
	if opts.Locale != "" {
		ctxOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.Timezone != "" {
		ctxOpts.TimezoneId = playwright.String(opts.Timezone)
	}
	if len(opts.ExtraHeaders) > 0 {
		ctxOpts.ExtraHttpHeaders = opts.ExtraHeaders
	}
	if opts.Proxy != nil {
		ctxOpts.Proxy = toProxy(opts.Proxy)
	}
	if opts.StorageStatePath != "" {
		if _, err := os.Stat(opts.StorageStatePath); err == nil {
			ctxOpts.StorageStatePath = playwright.String(opts.StorageStatePath)
		}
	}

	bc, err := b.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create browser context")
	}

	if len(opts.Cookies) > 0 {
		cookies := make([]playwright.OptionalCookie, 0, len(opts.Cookies))
		for _, c := range opts.Cookies {
			cookie := playwright.OptionalCookie{Name: c.Name, Value: c.Value}
			if c.URL != "" {
				cookie.URL = playwright.String(c.URL)
			}
			if c.Domain != "" {
				cookie.Domain = playwright.String(c.Domain)
			}
			if c.Path != "" {
				cookie.Path = playwright.String(c.Path)
			}
			cookies = append(cookies, cookie)
		}
		if err := bc.AddCookies(cookies); err != nil {
			bc.Close()
			return nil, errors.Wrap(err, "failed to add cookies to context")
		}
	}

	return &pwContext{ctx: bc}, nil
}

func (b *pwBrowser) Close() error {
	err := b.browser.Close()
	if stopErr := b.pw.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open page")
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) SaveStorageState(path string) error {
	_, err := c.ctx.StorageState(path)
	return err
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func waitUntilState(waitUntil string) *playwright.WaitUntilState {
	switch waitUntil {
	case "domcontentloaded":
		return playwright.WaitUntilStateDomcontentloaded
	case "networkidle":
		return playwright.WaitUntilStateNetworkidle
	case "commit":
		return playwright.WaitUntilStateCommit
	default:
		return playwright.WaitUntilStateLoad
	}
}

func (p *pwPage) Goto(url string, opts GotoOptions) error {
	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	_, err := p.page.Goto(url, gotoOpts)
	return err
}

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) WaitForNavigation(timeout time.Duration) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) WaitForTimeout(d time.Duration) {
	p.page.WaitForTimeout(float64(d.Milliseconds()))
}

func (p *pwPage) QueryAll(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, len(handles))
	for i, h := range handles {
		elements[i] = &pwElement{handle: h}
	}
	return elements, nil
}

func (p *pwPage) Evaluate(script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *pwPage) Frames() []Frame {
	pwFrames := p.page.Frames()
	main := p.page.MainFrame()
	frames := make([]Frame, 0, len(pwFrames))
	for _, f := range pwFrames {
		if f == main {
			continue
		}
		frames = append(frames, &pwFrame{frame: f})
	}
	return frames
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (p *pwPage) BlockResources(types []string) error {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[t] = true
	}
	return p.page.Route("**/*", func(route playwright.Route) {
		if blocked[route.Request().ResourceType()] {
			route.Abort()
			return
		}
		route.Continue()
	})
}

func (p *pwPage) Click(selector string) error {
	return p.page.Click(selector)
}

func (p *pwPage) Fill(selector, value string) error {
	return p.page.Fill(selector, value)
}

func (p *pwPage) TypeText(selector, text string, perKeyDelay time.Duration) error {
	opts := playwright.PageTypeOptions{}
	if perKeyDelay > 0 {
		opts.Delay = playwright.Float(float64(perKeyDelay.Milliseconds()))
	}
	return p.page.Type(selector, text, opts)
}

func (p *pwPage) Press(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *pwPage) SelectOption(selector, value string) error {
	_, err := p.page.SelectOption(selector, playwright.SelectOptionValues{
		Values: &[]string{value},
	})
	return err
}

func (p *pwPage) Hover(selector string) error {
	return p.page.Hover(selector)
}

func (p *pwPage) ScrollIntoView(selector string) error {
	return p.page.Locator(selector).ScrollIntoViewIfNeeded()
}

func (p *pwPage) ScrollBy(x, y int) error {
	_, err := p.page.Evaluate("([x, y]) => window.scrollBy(x, y)", []int{x, y})
	return err
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

type pwFrame struct {
	frame playwright.Frame
}

func (f *pwFrame) QueryAll(selector string) ([]Element, error) {
	handles, err := f.frame.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, len(handles))
	for i, h := range handles {
		elements[i] = &pwElement{handle: h}
	}
	return elements, nil
}

func (f *pwFrame) Click(selector string) error {
	return f.frame.Click(selector)
}

type pwElement struct {
	handle playwright.ElementHandle
}

func (e *pwElement) TextContent() (string, error) {
	return e.handle.TextContent()
}

func (e *pwElement) InnerText() (string, error) {
	return e.handle.InnerText()
}

func (e *pwElement) GetAttribute(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func (e *pwElement) InnerHTML() (string, error) {
	return e.handle.InnerHTML()
}

func (e *pwElement) OuterHTML() (string, error) {
	v, err := e.handle.Evaluate("el => el.outerHTML")
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Newf("outerHTML evaluation returned %T", v)
	}
	return s, nil
}

func (e *pwElement) InputValue() (string, error) {
	return e.handle.InputValue()
}
