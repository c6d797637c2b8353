// Package action executes the declared interaction script against a page
// before extraction runs.
package action

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
)

const (
	defaultWaitTimeout = 30 * time.Second
	loginNavTimeout    = 10 * time.Second
	defaultKeyDelay    = 100 * time.Millisecond
)

// Context threads values between actions within one run. setVariable writes
// to it and evaluate stores its result under "evalResult".
type Context map[string]any

// Engine dispatches action declarations against a page.
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine creates an action engine.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Run executes the ordered action list. A failing action aborts the script
// unless it is marked optional.
func (e *Engine) Run(page browser.Page, actions []config.Action, actx Context) error {
	if actx == nil {
		actx = make(Context)
	}

	for i := range actions {
		act := &actions[i]

		if act.If != nil && !e.evalCondition(page, act.If, actx) {
			e.logger.Debugw("Action condition false, skipping",
				"index", i,
				"type", act.Type)
			continue
		}

		if err := e.dispatch(page, act, actx); err != nil {
			if act.Optional {
				e.logger.Infow("Optional action failed, continuing",
					"index", i,
					"type", act.Type,
					"error", err)
				continue
			}
			return errors.Wrapf(err, "action %d (%s) failed", i, act.Type)
		}

		if act.DelayMs > 0 {
			page.WaitForTimeout(time.Duration(act.DelayMs) * time.Millisecond)
		}
	}

	return nil
}

func (e *Engine) dispatch(page browser.Page, act *config.Action, actx Context) error {
	switch act.Type {
	case config.ActionWait:
		page.WaitForTimeout(time.Duration(act.Ms) * time.Millisecond)
		return nil

	case config.ActionWaitForSelector:
		return page.WaitForSelector(browser.NormalizeSelector(act.Selector, false), actionTimeout(act))

	case config.ActionWaitForXPath:
		xp := act.XPath
		if xp == "" {
			xp = act.Selector
		}
		return page.WaitForSelector(browser.NormalizeSelector(xp, true), actionTimeout(act))

	case config.ActionWaitForNavigation:
		return page.WaitForNavigation(actionTimeout(act))

	case config.ActionClick:
		return e.click(page, act)

	case config.ActionType:
		return page.Fill(browser.NormalizeSelector(act.Selector, false), actionText(act))

	case config.ActionTypeSlowly:
		delay := defaultKeyDelay
		if act.KeyDelayMs > 0 {
			delay = time.Duration(act.KeyDelayMs) * time.Millisecond
		}
		return page.TypeText(browser.NormalizeSelector(act.Selector, false), actionText(act), delay)

	case config.ActionPressKey:
		return page.Press(act.Key)

	case config.ActionSelect:
		return page.SelectOption(browser.NormalizeSelector(act.Selector, false), act.Value)

	case config.ActionHover:
		return page.Hover(browser.NormalizeSelector(act.Selector, false))

	case config.ActionScroll:
		if act.Selector != "" {
			return page.ScrollIntoView(browser.NormalizeSelector(act.Selector, false))
		}
		return page.ScrollBy(act.X, act.Y)

	case config.ActionEvaluate:
		result, err := page.Evaluate(act.Script)
		if err != nil {
			return err
		}
		actx["evalResult"] = result
		return nil

	case config.ActionScreenshot:
		path := act.Path
		if path == "" {
			return errors.New("screenshot action missing path")
		}
		return page.Screenshot(path, true)

	case config.ActionSetVariable:
		if act.Name == "" {
			return errors.New("setVariable action missing name")
		}
		actx[act.Name] = act.Value
		return nil

	case config.ActionLogin:
		return e.login(page, act)

	default:
		e.logger.Warnw("Unknown action type, skipping", "type", act.Type)
		return nil
	}
}

// click probes the main frame first; when not found and checkFrames is not
// explicitly disabled, every child frame is probed and the first match is
// clicked.
func (e *Engine) click(page browser.Page, act *config.Action) error {
	selector := browser.NormalizeSelector(act.Selector, false)

	elements, err := page.QueryAll(selector)
	if err == nil && len(elements) > 0 {
		return page.Click(selector)
	}

	checkFrames := act.CheckFrames == nil || *act.CheckFrames
	if checkFrames {
		for _, frame := range page.Frames() {
			frameElements, err := frame.QueryAll(selector)
			if err != nil || len(frameElements) == 0 {
				continue
			}
			return frame.Click(selector)
		}
	}

	return errors.Wrapf(errors.ErrSelectorNotFound, "click target %s", act.Selector)
}

// login is a composite: fill the username field, fill the password field,
// click submit, then wait briefly for navigation. Any subset of fields may
// be omitted; the navigation wait is best-effort.
func (e *Engine) login(page browser.Page, act *config.Action) error {
	if act.UsernameSelector != "" {
		if err := page.Fill(browser.NormalizeSelector(act.UsernameSelector, false), act.Username); err != nil {
			return errors.Wrap(err, "failed to fill username")
		}
	}
	if act.PasswordSelector != "" {
		if err := page.Fill(browser.NormalizeSelector(act.PasswordSelector, false), act.Password); err != nil {
			return errors.Wrap(err, "failed to fill password")
		}
	}
	if act.SubmitSelector != "" {
		if err := page.Click(browser.NormalizeSelector(act.SubmitSelector, false)); err != nil {
			return errors.Wrap(err, "failed to click submit")
		}
	}
	if err := page.WaitForNavigation(loginNavTimeout); err != nil {
		e.logger.Debugw("Post-login navigation wait elapsed", "error", err)
	}
	return nil
}

// evalCondition decides whether a gated action runs. Unknown condition types
// pass.
func (e *Engine) evalCondition(page browser.Page, cond *config.Condition, actx Context) bool {
	switch cond.Type {
	case config.CondExists:
		elements, err := page.QueryAll(browser.NormalizeSelector(cond.Selector, false))
		return err == nil && len(elements) > 0

	case config.CondNotExists:
		elements, err := page.QueryAll(browser.NormalizeSelector(cond.Selector, false))
		return err != nil || len(elements) == 0

	case config.CondTextContains:
		elements, err := page.QueryAll(browser.NormalizeSelector(cond.Selector, false))
		if err != nil || len(elements) == 0 {
			return false
		}
		text, err := elements[0].TextContent()
		if err != nil {
			return false
		}
		return strings.Contains(text, cond.Text)

	case config.CondVariable:
		return truthy(actx[cond.Variable])

	case config.CondEvaluate:
		result, err := page.Evaluate(cond.Script)
		if err != nil {
			e.logger.Warnw("Condition script failed", "error", err)
			return false
		}
		return truthy(result)

	default:
		return true
	}
}

func actionTimeout(act *config.Action) time.Duration {
	if act.TimeoutMs > 0 {
		return time.Duration(act.TimeoutMs) * time.Millisecond
	}
	return defaultWaitTimeout
}

func actionText(act *config.Action) string {
	if act.Text != "" {
		return act.Text
	}
	return act.Value
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
