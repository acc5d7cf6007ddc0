// Package dispatch is the request pipeline that sits between the Fiber
// catch-all route and the page-producing handlers. Handlers are registered
// with a priority (lower runs first) and an optional path pattern; each one
// may pass the request on, answer it, or rewrite it to another path.
//
// A rewrite never reaches the client as a redirect: the chain re-dispatches
// the rewritten request from the top, and if nothing answers it the original
// request continues where it left off.
package dispatch

import (
	"net/url"
	"strings"
)

// Request 是单次请求的不可变视图，处理器之间按值传递。
type Request struct {
	Method      string
	Path        string
	RawQuery    string
	Query       url.Values
	Accept      string
	Host        string
	Scheme      string
	RequestID   string
	IfNoneMatch string

	// Rewritten 为 true 表示该请求由其他处理器改写而来。
	Rewritten    bool
	OriginalPath string
}

// IsHead 判断是否为 HEAD 请求。
func (r Request) IsHead() bool {
	return strings.EqualFold(r.Method, "HEAD")
}

// IsRead 判断是否为 GET/HEAD 请求。
func (r Request) IsRead() bool {
	return r.IsHead() || strings.EqualFold(r.Method, "GET")
}

// rewrite 返回指向 target 的副本，查询参数与请求头保持不变。
func (r Request) rewrite(target string) Request {
	out := r
	out.Rewritten = true
	out.OriginalPath = r.Path
	out.Path = target
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Kind 描述处理器的决定。
type Kind int

const (
	// Passthrough 交给下一个处理器。
	Passthrough Kind = iota
	// Respond 由当前处理器直接响应。
	Respond
	// Rewrite 改写路径后重新分发。
	Rewrite
)

func (k Kind) String() string {
	switch k {
	case Respond:
		return "respond"
	case Rewrite:
		return "rewrite"
	default:
		return "passthrough"
	}
}

// Response 是处理器生成的完整响应。
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Outcome 是 Handler 的返回值。
type Outcome struct {
	Kind     Kind
	Response Response
	// Target 为 Rewrite 的目标路径。
	Target string
	// Handler 记录做出决定的处理器名，由 Chain 填充。
	Handler string
}

// Pass 返回 Passthrough。
func Pass() Outcome {
	return Outcome{Kind: Passthrough}
}

// Reply 返回 Respond 结果。
func Reply(status int, headers map[string]string, body []byte) Outcome {
	if headers == nil {
		headers = map[string]string{}
	}
	return Outcome{Kind: Respond, Response: Response{Status: status, Headers: headers, Body: body}}
}

// RewriteTo 返回 Rewrite 结果。
func RewriteTo(target string) Outcome {
	return Outcome{Kind: Rewrite, Target: target}
}
