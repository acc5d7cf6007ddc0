package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler 处理一个请求并返回决定。
type Handler interface {
	Handle(ctx context.Context, req Request) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) Outcome

// Handle makes HandlerFunc satisfy Handler.
func (f HandlerFunc) Handle(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}

// ErrDuplicateHandler indicates a handler name is already registered.
var ErrDuplicateHandler = errors.New("handler already registered")

// Registration 描述一个处理器的注册信息。
type Registration struct {
	Name     string
	Priority int
	// Pattern 为空表示匹配所有路径。
	Pattern string
	Handler Handler
}

// Registered 是 /-/dispatch 诊断接口的输出。
type Registered struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Pattern  string `json:"pattern,omitempty"`
}

type entry struct {
	name     string
	priority int
	pattern  *regexp.Regexp
	handler  Handler
	seq      int
}

// Chain 按优先级执行处理器。
type Chain struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	entries []entry
	seq     int
}

// NewChain 创建空的处理链。
func NewChain(logger *logrus.Logger) *Chain {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Chain{logger: logger}
}

// Register 按 (Priority, 注册顺序) 插入处理器。
func (c *Chain) Register(reg Registration) error {
	name := normalizeName(reg.Name)
	if name == "" {
		return errors.New("handler name required")
	}
	if reg.Handler == nil {
		return fmt.Errorf("handler %s: nil handler", name)
	}
	var pattern *regexp.Regexp
	if reg.Pattern != "" {
		compiled, err := regexp.Compile(reg.Pattern)
		if err != nil {
			return fmt.Errorf("handler %s: invalid pattern: %w", name, err)
		}
		pattern = compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
		}
	}
	c.seq++
	c.entries = append(c.entries, entry{
		name:     name,
		priority: reg.Priority,
		pattern:  pattern,
		handler:  reg.Handler,
		seq:      c.seq,
	})
	sort.SliceStable(c.entries, func(i, j int) bool {
		if c.entries[i].priority != c.entries[j].priority {
			return c.entries[i].priority < c.entries[j].priority
		}
		return c.entries[i].seq < c.entries[j].seq
	})
	return nil
}

// MustRegister panics on registration failure.
func (c *Chain) MustRegister(reg Registration) {
	if err := c.Register(reg); err != nil {
		panic(err)
	}
}

// Snapshot 返回当前注册表，按执行顺序排列。
func (c *Chain) Snapshot() []Registered {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Registered, 0, len(c.entries))
	for _, e := range c.entries {
		reg := Registered{Name: e.name, Priority: e.priority}
		if e.pattern != nil {
			reg.Pattern = e.pattern.String()
		}
		out = append(out, reg)
	}
	return out
}

// Dispatch 依次执行处理器直到有处理器响应；全部放行时返回 Passthrough。
func (c *Chain) Dispatch(ctx context.Context, req Request) Outcome {
	c.mu.RLock()
	entries := make([]entry, len(c.entries))
	copy(entries, c.entries)
	c.mu.RUnlock()

	for _, e := range entries {
		if e.pattern != nil && !e.pattern.MatchString(req.Path) {
			continue
		}
		out := c.invoke(ctx, e, req)
		switch out.Kind {
		case Respond:
			return out
		case Rewrite:
			// 改写只发生一次，改写后的请求不会再次被改写。
			if req.Rewritten || out.Target == "" || out.Target == req.Path {
				continue
			}
			c.logger.WithFields(logrus.Fields{
				"action":     "dispatch",
				"handler":    e.name,
				"request_id": req.RequestID,
				"path":       req.Path,
				"target":     out.Target,
			}).Debug("request rewritten")
			if res := c.Dispatch(ctx, req.rewrite(out.Target)); res.Kind == Respond {
				return res
			}
		}
	}
	return Pass()
}

func (c *Chain) invoke(ctx context.Context, e entry, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"action":     "dispatch",
				"handler":    e.name,
				"request_id": req.RequestID,
				"path":       req.Path,
				"error":      "handler_panic",
			}).Error(fmt.Sprintf("panic: %v", r))
			out = Reply(500, map[string]string{"Content-Type": "application/json"}, []byte(`{"error":"handler_panic"}`))
			out.Handler = e.name
		}
	}()
	out = e.handler.Handle(ctx, req)
	out.Handler = e.name
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
