// Package browser drives a headless Chrome/Chromium instance via the
// Chrome DevTools Protocol and captures every JavaScript resource a target
// page loads, either as part of the initial document or fetched at
// runtime. It implements the navigating -> loading -> settled -> done
// state machine: network events are queued while the page loads, and a
// response is only considered final once the page's load event has fired
// and the event queue has been idle for a debounce window.
package browser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// captureState is one in-flight network response being tracked for a
// navigation. A response only becomes a CapturedScript once its body has
// been fetched.
type captureState struct {
	requestID    network.RequestID
	url          string
	mimeType     string
	origin       model.ScriptOrigin
	responseDone bool
}

// Capturer drives a single browser session (one tab, reused across targets
// in the same host group) through repeated navigations, collecting the
// JavaScript resources each one loads.
type Capturer struct {
	sessionCtx     context.Context
	logger         *zap.Logger
	navTimeout     time.Duration
	settleDebounce time.Duration
	fastMode       bool
}

// NewCapturer builds a Capturer bound to an already-created chromedp
// browser context (a tab). navTimeout bounds the entire navigation;
// settleDebounce is the quiet-period window; when fastMode is set it is
// ignored and a fixed 400ms window is used instead.
func NewCapturer(sessionCtx context.Context, logger *zap.Logger, navTimeout, settleDebounce time.Duration, fastMode bool) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		sessionCtx:     sessionCtx,
		logger:         logger.Named("capture"),
		navTimeout:     navTimeout,
		settleDebounce: settleDebounce,
		fastMode:       fastMode,
	}
}

// Capture navigates the session's tab to targetURL and returns every
// JavaScript resource observed before the page settled, deduplicated by
// content hash. A navigation failure is returned as an error; individual
// body-fetch failures are logged and the response is simply omitted.
func (c *Capturer) Capture(ctx context.Context, targetURL string) ([]*model.CapturedScript, error) {
	navCtx, cancel := context.WithTimeout(c.sessionCtx, c.navTimeout)
	defer cancel()
	navCtx, listenerCancel := context.WithCancel(navCtx)
	defer listenerCancel()

	debounce := c.settleDebounce
	if c.fastMode {
		debounce = 400 * time.Millisecond
	}

	var mu sync.Mutex
	pending := map[network.RequestID]*captureState{}
	bodies := make([]*model.CapturedScript, 0, 16)
	seenHashes := map[string]struct{}{}

	var bodyFetchWG sync.WaitGroup
	loadFired := make(chan struct{})
	var loadFiredOnce sync.Once

	activity := make(chan struct{}, 256)
	signalActivity := func() {
		select {
		case activity <- struct{}{}:
		default:
		}
	}

	addScript := func(rawURL string, body []byte, contentType string, origin model.ScriptOrigin) {
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])
		mu.Lock()
		defer mu.Unlock()
		if _, exists := seenHashes[hash]; exists {
			return
		}
		seenHashes[hash] = struct{}{}
		bodies = append(bodies, &model.CapturedScript{
			URL:         rawURL,
			Body:        body,
			ContentType: contentType,
			Origin:      origin,
			Depth:       0,
			ContentHash: hash,
		})
	}

	fetchBody := func(reqID network.RequestID, rawURL, mimeType string, origin model.ScriptOrigin) {
		defer bodyFetchWG.Done()
		fetchCtx, fetchCancel := context.WithTimeout(c.sessionCtx, 15*time.Second)
		defer fetchCancel()

		result, err := network.GetResponseBody(reqID).Do(fetchCtx)
		if err != nil {
			if fetchCtx.Err() == nil {
				c.logger.Debug("failed to fetch script body", zap.String("url", rawURL), zap.Error(err))
			}
			return
		}
		addScript(rawURL, result, mimeType, origin)
		signalActivity()
	}

	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			mu.Lock()
			pending[e.RequestID] = &captureState{requestID: e.RequestID, url: e.Request.URL}
			mu.Unlock()
			signalActivity()

		case *network.EventResponseReceived:
			if !isJavaScriptResponse(e.Response.MimeType, e.Response.URL) {
				return
			}
			mu.Lock()
			state, ok := pending[e.RequestID]
			if !ok {
				state = &captureState{requestID: e.RequestID, url: e.Response.URL}
				pending[e.RequestID] = state
			}
			state.mimeType = e.Response.MimeType
			state.origin = originForType(e.Type)
			mu.Unlock()
			signalActivity()

		case *network.EventLoadingFinished:
			mu.Lock()
			state, ok := pending[e.RequestID]
			if ok {
				delete(pending, e.RequestID)
			}
			mu.Unlock()
			if !ok || state.mimeType == "" {
				return
			}
			bodyFetchWG.Add(1)
			go fetchBody(state.requestID, state.url, state.mimeType, state.origin)

		case *network.EventLoadingFailed:
			mu.Lock()
			delete(pending, e.RequestID)
			mu.Unlock()
			signalActivity()

		case *page.EventLoadEventFired:
			loadFiredOnce.Do(func() { close(loadFired) })
			signalActivity()
		}
	})

	if err := chromedp.Run(navCtx,
		network.Enable(),
		page.Enable(),
		chromedp.Navigate(targetURL),
	); err != nil {
		return nil, err
	}

	settleErr := c.waitSettled(navCtx, loadFired, activity, debounce)

	c.drainPending(navCtx, &bodyFetchWG)

	mu.Lock()
	out := make([]*model.CapturedScript, len(bodies))
	copy(out, bodies)
	mu.Unlock()

	// A page that never settles within the debounce window still yielded
	// every script captured up to that point; returning them alongside the
	// error lets the caller treat this as a partial, timed-out result
	// instead of discarding usable captures outright.
	return out, settleErr
}

// waitSettled blocks until the page's load event has fired and the
// network-activity channel has been quiet for the debounce window, or the
// navigation context expires first.
func (c *Capturer) waitSettled(ctx context.Context, loadFired <-chan struct{}, activity <-chan struct{}, debounce time.Duration) error {
	select {
	case <-loadFired:
	case <-ctx.Done():
		return ctx.Err()
	}

	timer := time.NewTimer(debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-activity:
			timer.Reset(debounce)
		case <-timer.C:
			return nil
		}
	}
}

// drainPending waits for in-flight body fetches to complete, bounded by
// the navigation context so a stuck fetch can never hang the target.
func (c *Capturer) drainPending(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Debug("timed out draining in-flight body fetches")
	}
}

func isJavaScriptResponse(mimeType, rawURL string) bool {
	lower := strings.ToLower(mimeType)
	if strings.Contains(lower, "javascript") || strings.Contains(lower, "ecmascript") {
		return true
	}
	u := strings.ToLower(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".js") || strings.HasSuffix(u, ".mjs")
}

func originForType(resourceType network.ResourceType) model.ScriptOrigin {
	switch resourceType {
	case network.ResourceTypeScript:
		return model.OriginMainDocument
	case network.ResourceTypeFetch, network.ResourceTypeXHR:
		return model.OriginRuntimeFetch
	default:
		return model.OriginRuntimeFetch
	}
}
