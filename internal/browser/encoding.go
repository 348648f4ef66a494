package browser

import (
	"time"
)

// callInput is everything an encoder may need to build a request body.
type callInput struct {
	URL             string
	Cookies         []Cookie
	UserAgent       string
	Script          string
	Args            []any
	Timeout         time.Duration
	WaitForSelector string
}

// encoder builds the path and JSON body for one (Operation, Encoding) pair.
type encoder struct {
	Path  string
	Build func(in callInput) map[string]any
}

// encodings is the dispatch table. Preferred shapes use the current service parameters
// (userAgent, gotoOptions, /function); legacy shapes stick to fields every deployed version accepts.
var encodings = map[Operation]map[Encoding]encoder{
	OpNavigate: {
		Preferred: {Path: "/function", Build: func(in callInput) map[string]any {
			return map[string]any{
				"code":    navigateFunction,
				"context": functionContext(in),
			}
		}},
		Legacy: {Path: "/content", Build: legacyPageBody},
	},
	OpScreenshot: {
		Preferred: {Path: "/screenshot", Build: func(in callInput) map[string]any {
			body := preferredPageBody(in)
			body["options"] = map[string]any{"fullPage": true, "type": "png"}
			return body
		}},
		Legacy: {Path: "/screenshot", Build: func(in callInput) map[string]any {
			body := legacyPageBody(in)
			body["options"] = map[string]any{"type": "png"}
			return body
		}},
	},
	OpHTML: {
		Preferred: {Path: "/content", Build: func(in callInput) map[string]any {
			body := preferredPageBody(in)
			if in.WaitForSelector != "" {
				body["waitForSelector"] = map[string]any{"selector": in.WaitForSelector, "timeout": in.Timeout.Milliseconds()}
			}
			return body
		}},
		Legacy: {Path: "/content", Build: legacyPageBody},
	},
	OpEvaluate: {
		Preferred: {Path: "/function", Build: func(in callInput) map[string]any {
			ctx := functionContext(in)
			ctx["script"] = in.Script
			ctx["args"] = nonNilArgs(in.Args)
			return map[string]any{
				"code":    evaluateFunction,
				"context": ctx,
			}
		}},
		Legacy: {Path: "/execute", Build: func(in callInput) map[string]any {
			body := map[string]any{
				"url":     in.URL,
				"code":    in.Script,
				"context": map[string]any{"args": nonNilArgs(in.Args)},
			}
			if len(in.Cookies) > 0 {
				body["cookies"] = in.Cookies
			}
			return body
		}},
	},
}

func preferredPageBody(in callInput) map[string]any {
	body := map[string]any{
		"url": in.URL,
		"gotoOptions": map[string]any{
			"waitUntil": "networkidle2",
			"timeout":   in.Timeout.Milliseconds(),
		},
	}
	if len(in.Cookies) > 0 {
		body["cookies"] = in.Cookies
	}
	if in.UserAgent != "" {
		body["userAgent"] = in.UserAgent
	}
	return body
}

func legacyPageBody(in callInput) map[string]any {
	body := map[string]any{"url": in.URL}
	if len(in.Cookies) > 0 {
		body["cookies"] = in.Cookies
	}
	if in.UserAgent != "" {
		body["setExtraHTTPHeaders"] = map[string]string{"User-Agent": in.UserAgent}
	}
	return body
}

func functionContext(in callInput) map[string]any {
	cookies := in.Cookies
	if cookies == nil {
		cookies = []Cookie{}
	}
	return map[string]any{
		"url":       in.URL,
		"cookies":   cookies,
		"userAgent": in.UserAgent,
		"timeout":   in.Timeout.Milliseconds(),
	}
}

func nonNilArgs(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

const navigateFunction = `export default async function ({ page, context }) {
  if (context.userAgent) await page.setUserAgent(context.userAgent);
  if (context.cookies.length) await page.setCookie(...context.cookies);
  const res = await page.goto(context.url, { waitUntil: 'networkidle2', timeout: context.timeout });
  return {
    data: { url: page.url(), status: res ? res.status() : 0, title: await page.title() },
    type: 'application/json',
  };
}`

const evaluateFunction = `export default async function ({ page, context }) {
  if (context.userAgent) await page.setUserAgent(context.userAgent);
  if (context.cookies.length) await page.setCookie(...context.cookies);
  await page.goto(context.url, { waitUntil: 'networkidle2', timeout: context.timeout });
  const data = await page.evaluate('(' + context.script + ')(...' + JSON.stringify(context.args) + ')');
  return { data: data === undefined ? null : data, type: 'application/json' };
}`
