// Package macros expands {MACRO} placeholders in creative link URLs at click
// time, so advertisers can receive the ad id, slot and visitor context on
// their landing pages.
package macros

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/observability"
)

// ExpansionFunc produces the value of one macro.
type ExpansionFunc func(ctx *ClickContext) (string, error)

// ClickContext is the data available to macros for one click.
type ClickContext struct {
	AdID       string
	Position   string
	RequestID  string
	Country    string
	DeviceType string
	Timestamp  time.Time
}

// Expander replaces {NAME} placeholders with URL-escaped values.
// Placeholders without a registered macro are left untouched.
type Expander struct {
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	mu         sync.RWMutex
	expansions map[string]ExpansionFunc
}

// NewExpander returns an expander with the default macros registered.
func NewExpander(logger *zap.Logger, metrics observability.MetricsRegistry) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	e := &Expander{
		logger:     logger.Named("macros"),
		metrics:    metrics,
		expansions: make(map[string]ExpansionFunc),
	}
	e.registerDefaults()
	return e
}

// Register adds or replaces a macro.
func (e *Expander) Register(name string, fn ExpansionFunc) error {
	if name == "" {
		return fmt.Errorf("macro name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("expansion function cannot be nil")
	}
	e.mu.Lock()
	e.expansions[name] = fn
	e.mu.Unlock()
	return nil
}

// Names returns the registered macro names in sorted order.
func (e *Expander) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.expansions))
	for name := range e.expansions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expand replaces every known macro in rawURL. A macro that fails to expand
// is logged and left in place; the rest of the URL is still expanded.
func (e *Expander) Expand(rawURL string, ctx *ClickContext) (string, error) {
	if rawURL == "" || !strings.Contains(rawURL, "{") {
		return rawURL, nil
	}
	if _, err := url.Parse(rawURL); err != nil {
		return rawURL, fmt.Errorf("parse url: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var pairs []string
	for name, fn := range e.expansions {
		placeholder := "{" + name + "}"
		if !strings.Contains(rawURL, placeholder) {
			continue
		}
		value, err := fn(ctx)
		if err != nil {
			e.metrics.IncrementMacroExpansion(name, false)
			e.logger.Warn("macro expansion failed", zap.String("macro", name), zap.Error(err))
			continue
		}
		e.metrics.IncrementMacroExpansion(name, true)
		pairs = append(pairs, placeholder, url.QueryEscape(value))
	}
	if len(pairs) == 0 {
		return rawURL, nil
	}
	return strings.NewReplacer(pairs...).Replace(rawURL), nil
}

// Unsupported lists the placeholders in rawURL that no macro handles.
func (e *Expander) Unsupported(rawURL string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []string
	rest := rawURL
	for {
		start := strings.Index(rest, "{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		name := rest[start+1 : start+end]
		if _, ok := e.expansions[name]; !ok {
			out = append(out, name)
		}
		rest = rest[start+end+1:]
	}
	return out
}

func (e *Expander) registerDefaults() {
	e.expansions["AD_ID"] = func(ctx *ClickContext) (string, error) {
		return ctx.AdID, nil
	}
	e.expansions["POSITION"] = func(ctx *ClickContext) (string, error) {
		return ctx.Position, nil
	}
	e.expansions["REQUEST_ID"] = func(ctx *ClickContext) (string, error) {
		if ctx.RequestID == "" {
			return "", fmt.Errorf("no request id")
		}
		return ctx.RequestID, nil
	}
	e.expansions["COUNTRY"] = func(ctx *ClickContext) (string, error) {
		return ctx.Country, nil
	}
	e.expansions["DEVICE"] = func(ctx *ClickContext) (string, error) {
		return ctx.DeviceType, nil
	}
	e.expansions["TIMESTAMP"] = func(ctx *ClickContext) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.Unix(), 10), nil
	}
	e.expansions["TIMESTAMP_MS"] = func(ctx *ClickContext) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.UnixMilli(), 10), nil
	}
	e.expansions["ISO_TIMESTAMP"] = func(ctx *ClickContext) (string, error) {
		return ctx.Timestamp.UTC().Format(time.RFC3339), nil
	}
	// cache busting
	e.expansions["RANDOM"] = func(ctx *ClickContext) (string, error) {
		return strconv.FormatInt(time.Now().UnixNano(), 10), nil
	}
	e.expansions["UUID"] = func(ctx *ClickContext) (string, error) {
		return uuid.NewString(), nil
	}
}
