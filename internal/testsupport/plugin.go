package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dlq/internal/plugin"
)

// FakeResult is one scripted plugin answer.
type FakeResult struct {
	Result plugin.Result
	Err    error
}

// FakePlugin answers from a script. Once the script is exhausted every call
// returns a DownloadRequest for the requested URL.
type FakePlugin struct {
	id     string
	prefix string

	mu     sync.Mutex
	script []FakeResult
	calls  []string
}

// NewFakePlugin claims URLs starting with prefix.
func NewFakePlugin(id, prefix string, script ...FakeResult) *FakePlugin {
	return &FakePlugin{id: id, prefix: prefix, script: script}
}

// Script appends answers.
func (p *FakePlugin) Script(results ...FakeResult) {
	p.mu.Lock()
	p.script = append(p.script, results...)
	p.mu.Unlock()
}

// Calls returns a log of calls such as "get <url>" or "captcha <callback> <response>".
func (p *FakePlugin) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *FakePlugin) next(call, rawURL string) (plugin.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if len(p.script) == 0 {
		return plugin.DownloadRequest{URL: rawURL}, nil
	}
	r := p.script[0]
	p.script = p.script[1:]
	return r.Result, r.Err
}

func (p *FakePlugin) ID() string { return p.id }

func (p *FakePlugin) Matches(rawURL string) bool { return strings.HasPrefix(rawURL, p.prefix) }

func (p *FakePlugin) CheckURL(_ context.Context, rawURL string, _ plugin.Settings) ([]plugin.URLResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, "check "+rawURL)
	p.mu.Unlock()
	return []plugin.URLResult{
		{URL: rawURL + "/1", FileName: "part1.bin"},
		{URL: rawURL + "/2", FileName: "part2.bin"},
	}, nil
}

func (p *FakePlugin) GetDownloadRequest(_ context.Context, rawURL string, _ plugin.Settings) (plugin.Result, error) {
	return p.next("get "+rawURL, rawURL)
}

func (p *FakePlugin) SubmitCaptchaResponse(_ context.Context, callback, response string) (plugin.Result, error) {
	return p.next(fmt.Sprintf("captcha %s %s", callback, response), "")
}

func (p *FakePlugin) SubmitSettingsResponse(_ context.Context, callback string, values map[string]any) (plugin.Result, error) {
	return p.next(fmt.Sprintf("settings %s %d", callback, len(values)), "")
}
