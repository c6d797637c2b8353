package browser

import (
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagewatch/pagewatch/errors"
	"github.com/pagewatch/pagewatch/internal/httpclient"
)

// NewStatic returns a browserless Browser implementation for http-mode
// watches. Pages are plain GET responses parsed with goquery, so selector
// extractors work unchanged; anything requiring a live DOM (evaluate,
// clicks, screenshots, frames) reports ErrUnsupported.
func NewStatic(timeout time.Duration) Browser {
	return &staticBrowser{client: httpclient.New(timeout)}
}

type staticBrowser struct {
	client *http.Client
}

func (b *staticBrowser) NewContext(opts ContextOptions) (Context, error) {
	return &staticContext{client: b.client, opts: opts}, nil
}

func (b *staticBrowser) Close() error { return nil }

type staticContext struct {
	client *http.Client
	opts   ContextOptions
}

func (c *staticContext) NewPage() (Page, error) {
	return &staticPage{client: c.client, opts: c.opts}, nil
}

func (c *staticContext) SaveStorageState(string) error {
	return errors.Wrap(errors.ErrUnsupported, "storage state")
}

func (c *staticContext) Close() error { return nil }

type staticPage struct {
	client *http.Client
	opts   ContextOptions

	doc      *goquery.Document
	finalURL string
}

func (p *staticPage) Goto(target string, gotoOpts GotoOptions) error {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrapf(err, "invalid url %q", target)
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	for k, v := range p.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
	for _, c := range p.opts.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Newf("fetch %s returned status %d", target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to parse response from %s", target)
	}

	p.doc = doc
	p.finalURL = resp.Request.URL.String()
	return nil
}

func (p *staticPage) WaitForSelector(selector string, _ time.Duration) error {
	els, err := p.QueryAll(selector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return errors.Wrapf(errors.ErrSelectorNotFound, "%s", selector)
	}
	return nil
}

func (p *staticPage) WaitForNavigation(time.Duration) error { return nil }

func (p *staticPage) WaitForTimeout(d time.Duration) { time.Sleep(d) }

func (p *staticPage) QueryAll(selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, errors.New("page not loaded")
	}
	if IsXPath(selector) {
		return nil, errors.Wrap(errors.ErrUnsupported, "xpath selectors in http fetch mode")
	}
	var elements []Element
	p.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, &staticElement{sel: sel})
	})
	return elements, nil
}

func (p *staticPage) Evaluate(string) (any, error) {
	return nil, errors.Wrap(errors.ErrUnsupported, "script evaluation in http fetch mode")
}

func (p *staticPage) Frames() []Frame { return nil }

func (p *staticPage) URL() string { return p.finalURL }

func (p *staticPage) Title() (string, error) {
	if p.doc == nil {
		return "", errors.New("page not loaded")
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (p *staticPage) Screenshot(string, bool) error {
	return errors.Wrap(errors.ErrUnsupported, "screenshots in http fetch mode")
}

func (p *staticPage) BlockResources([]string) error {
	// Nothing to block: only the document itself is fetched.
	return nil
}

func (p *staticPage) Click(string) error {
	return errors.Wrap(errors.ErrUnsupported, "click in http fetch mode")
}

func (p *staticPage) Fill(string, string) error {
	return errors.Wrap(errors.ErrUnsupported, "fill in http fetch mode")
}

func (p *staticPage) TypeText(string, string, time.Duration) error {
	return errors.Wrap(errors.ErrUnsupported, "type in http fetch mode")
}

func (p *staticPage) Press(string) error {
	return errors.Wrap(errors.ErrUnsupported, "key press in http fetch mode")
}

func (p *staticPage) SelectOption(string, string) error {
	return errors.Wrap(errors.ErrUnsupported, "select in http fetch mode")
}

func (p *staticPage) Hover(string) error {
	return errors.Wrap(errors.ErrUnsupported, "hover in http fetch mode")
}

func (p *staticPage) ScrollIntoView(string) error { return nil }

func (p *staticPage) ScrollBy(int, int) error { return nil }

func (p *staticPage) Close() error { return nil }

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) TextContent() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) InnerText() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) GetAttribute(name string) (string, error) {
	return e.sel.AttrOr(name, ""), nil
}

func (e *staticElement) InnerHTML() (string, error) {
	return e.sel.Html()
}

func (e *staticElement) OuterHTML() (string, error) {
	return goquery.OuterHtml(e.sel)
}

func (e *staticElement) InputValue() (string, error) {
	return e.sel.AttrOr("value", ""), nil
}
