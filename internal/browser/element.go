package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Element is a handle to a located page node. Accessors surface ErrStale
// when the node has been re-rendered out from under the handle; the Locator
// re-resolves and retries.
type Element interface {
	Selector() string
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, error)
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
}

const elementOpTimeout = 5 * time.Second

// nodeElement binds a devtools node to the session that resolved it.
type nodeElement struct {
	sess *Session
	sel  string
	node *cdp.Node
}

func (e *nodeElement) Selector() string { return e.sel }

func (e *nodeElement) ids() []cdp.NodeID { return []cdp.NodeID{e.node.NodeID} }

func (e *nodeElement) Visible(ctx context.Context) (bool, error) {
	err := e.sess.run(ctx, 2*time.Second, chromedp.WaitVisible(e.ids(), chromedp.ByNodeID))
	if err != nil {
		if IsTimeout(err) {
			return false, nil
		}
		return false, wrapDOM("checking visibility of "+e.sel, err)
	}
	return true, nil
}

func (e *nodeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.sess.run(ctx, elementOpTimeout, chromedp.Text(e.ids(), &text, chromedp.ByNodeID))
	if err != nil {
		return "", wrapDOM("reading text of "+e.sel, err)
	}
	return text, nil
}

func (e *nodeElement) Attr(ctx context.Context, name string) (string, error) {
	var value string
	var ok bool
	err := e.sess.run(ctx, elementOpTimeout, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID))
	if err != nil {
		return "", wrapDOM("reading attribute "+name+" of "+e.sel, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

func (e *nodeElement) HTML(ctx context.Context) (string, error) {
	return e.sess.outerHTMLByNode(ctx, e.node.NodeID, elementOpTimeout)
}

func (e *nodeElement) Click(ctx context.Context) error {
	err := e.sess.run(ctx, elementOpTimeout, chromedp.Click(e.ids(), chromedp.ByNodeID))
	if err != nil {
		return wrapDOM("clicking "+e.sel, err)
	}
	return nil
}

func (e *nodeElement) ScrollIntoView(ctx context.Context) error {
	err := e.sess.run(ctx, elementOpTimeout, chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID))
	if err != nil {
		return wrapDOM("scrolling to "+e.sel, err)
	}
	return nil
}
