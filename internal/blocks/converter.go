package blocks

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const defaultConversionTimeout = 30 * time.Second

// Path names the route a conversion took.
type Path string

const (
	PathOracle   Path = "oracle"
	PathFallback Path = "fallback"
	PathEmpty    Path = "empty"
)

// Transformer turns freeform text into a JSON document of the form
// {"blocks": [...]}. Implementations may fail or return malformed output.
type Transformer interface {
	Transform(ctx context.Context, text string) (string, error)
}

// Update is the input to a conversion.
type Update struct {
	ID             string
	CategoryName   string
	CategoryURL    string
	CategoryStatus string
	Health         string
	Body           string
}

// Result is a converted update.
type Result struct {
	Blocks  []Block
	Path    Path
	Dropped int
	Skipped int
}

// Converter renders updates into block lists. The oracle path is tried
// first; any failure there degrades to the deterministic linkifier.
type Converter struct {
	oracle    Transformer
	namespace string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewConverter creates a Converter. oracle may be nil, in which case every
// conversion takes the fallback path. A non-positive timeout uses 30s.
func NewConverter(oracle Transformer, namespace string, timeout time.Duration) *Converter {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if timeout <= 0 {
		timeout = defaultConversionTimeout
	}
	return &Converter{
		oracle:    oracle,
		namespace: namespace,
		timeout:   timeout,
		logger:    slog.Default(),
	}
}

// Namespace returns the marker namespace this converter writes.
func (c *Converter) Namespace() string {
	return c.namespace
}

// Convert builds the full block range for u: divider, heading, optional
// status line, content, and, when withMarker is set, the end marker.
func (c *Converter) Convert(ctx context.Context, u Update, withMarker bool) Result {
	heading := Plain(u.CategoryName)
	if u.CategoryURL != "" {
		heading = Linked(u.CategoryName, u.CategoryURL)
	}
	out := []Block{Divider(), Heading(2, heading)}

	if sb, ok := StatusBlock(u.CategoryStatus, u.Health); ok {
		out = append(out, sb)
	}

	res := c.Content(ctx, u.Body)
	out = append(out, res.Blocks...)

	if withMarker {
		out = append(out, MarkerBlock(c.namespace, u.ID))
	}
	res.Blocks = out
	return res
}

// Content converts only the body text.
func (c *Converter) Content(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Path: PathEmpty}
	}

	if c.oracle != nil {
		res, ok := c.viaOracle(ctx, text)
		if ok {
			return res
		}
		c.logger.Warn("oracle conversion produced no blocks, using fallback",
			"dropped", res.Dropped, "skipped", res.Skipped)
		return Result{Blocks: FallbackBlocks(text), Path: PathFallback, Dropped: res.Dropped, Skipped: res.Skipped}
	}

	return Result{Blocks: FallbackBlocks(text), Path: PathFallback}
}

func (c *Converter) viaOracle(ctx context.Context, text string) (Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.oracle.Transform(ctx, text)
	if err != nil {
		c.logger.Warn("oracle transform failed", "error", err)
		return Result{}, false
	}

	elems, err := ParseEnvelope(raw)
	if err != nil {
		c.logger.Warn("oracle returned malformed output", "error", err)
		return Result{}, false
	}

	norm := Normalize(elems)
	if norm.Dropped > 0 {
		c.logger.Warn("dropped non-object blocks from oracle output", "count", norm.Dropped)
	}
	for _, e := range norm.Errors {
		c.logger.Warn("skipped oracle block", "error", e)
	}

	res := Result{Blocks: norm.Blocks, Path: PathOracle, Dropped: norm.Dropped, Skipped: norm.Skipped}
	return res, len(norm.Blocks) > 0
}
