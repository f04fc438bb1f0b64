package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SentinelValue marks a slot that could not be filled.
const SentinelValue = "-"

// ErrEmpty is reported by a probe that ran but found nothing.
var ErrEmpty = errors.New("empty")

// ProbeResult is the outcome of one extraction strategy. A result with an
// empty Value is a miss, and Err says why when known.
type ProbeResult struct {
	Value string
	Err   error
}

// Hit reports whether the probe produced a usable value.
func (r ProbeResult) Hit() bool { return r.Value != "" }

func miss(err error) ProbeResult { return ProbeResult{Err: err} }

func hit(v string) ProbeResult {
	if v = Sanitize(v); v == "" {
		return miss(ErrEmpty)
	}
	return ProbeResult{Value: v}
}

// Probe is one extraction strategy for a field.
type Probe interface {
	Name() string
	Probe(ctx context.Context, p *Page) ProbeResult
}

type probeFunc struct {
	name string
	fn   func(context.Context, *Page) ProbeResult
}

func (f probeFunc) Name() string { return f.name }

func (f probeFunc) Probe(ctx context.Context, p *Page) ProbeResult { return f.fn(ctx, p) }

// FuncProbe adapts a function returning raw text into a Probe. The text is
// sanitized.
func FuncProbe(name string, fn func(context.Context, *Page) (string, error)) Probe {
	return probeFunc{name: name, fn: func(ctx context.Context, p *Page) ProbeResult {
		v, err := fn(ctx, p)
		if err != nil {
			return miss(err)
		}
		return hit(v)
	}}
}

// TextBySelector reads the text of the first element matching selector.
func TextBySelector(selector string) Probe {
	return probeFunc{name: "text(" + selector + ")", fn: func(_ context.Context, p *Page) ProbeResult {
		sel := p.Find(selector)
		if sel.Length() == 0 {
			return miss(fmt.Errorf("%s: no element", selector))
		}
		return hit(sel.First().Text())
	}}
}

// TextByID reads the text of the element with the given id.
func TextByID(id string) Probe {
	return TextBySelector("#" + id)
}

// Attr reads an attribute of the first element matching selector.
func Attr(selector, attr string) Probe {
	return probeFunc{name: fmt.Sprintf("attr(%s,%s)", selector, attr), fn: func(_ context.Context, p *Page) ProbeResult {
		v, ok := p.Find(selector).First().Attr(attr)
		if !ok {
			return miss(fmt.Errorf("%s: no %s attribute", selector, attr))
		}
		return hit(v)
	}}
}

// LabeledRow reads the value cell of the last row whose label contains any
// of labels, ignoring case.
func LabeledRow(rowSel, labelSel, valueSel string, labels ...string) Probe {
	return probeFunc{name: "row(" + strings.Join(labels, "|") + ")", fn: func(_ context.Context, p *Page) ProbeResult {
		var value string
		p.Find(rowSel).Each(func(_ int, row *goquery.Selection) {
			if ContainsAny(row.Find(labelSel).Text(), labels...) {
				value = row.Find(valueSel).First().Text()
			}
		})
		return hit(value)
	}}
}

// JoinEach formats every element matching selector and joins the non-empty
// results with sep.
func JoinEach(selector, sep string, format func(*goquery.Selection) string) Probe {
	return probeFunc{name: "each(" + selector + ")", fn: func(_ context.Context, p *Page) ProbeResult {
		var parts []string
		p.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if v := Sanitize(format(s)); v != "" {
				parts = append(parts, v)
			}
		})
		return hit(strings.Join(parts, sep))
	}}
}

// ScriptProbe evaluates script in the live session the page came from.
// Only string results count.
func ScriptProbe(name, script string, args ...any) Probe {
	return probeFunc{name: "script(" + name + ")", fn: func(ctx context.Context, p *Page) ProbeResult {
		if p.Driver() == nil {
			return miss(errors.New("no live session"))
		}
		v, err := RunString(ctx, p.Driver(), script, args...)
		if err != nil {
			return miss(err)
		}
		return hit(v)
	}}
}

// Transform post-processes a successful probe's value.
func Transform(pr Probe, fn func(string) string) Probe {
	return probeFunc{name: pr.Name(), fn: func(ctx context.Context, p *Page) ProbeResult {
		r := pr.Probe(ctx, p)
		if !r.Hit() {
			return r
		}
		if v := fn(r.Value); v != "" {
			return ProbeResult{Value: v}
		}
		return miss(ErrEmpty)
	}}
}

// Literal always yields v.
func Literal(v string) Probe {
	return probeFunc{name: "literal", fn: func(context.Context, *Page) ProbeResult { return ProbeResult{Value: v} }}
}

// Chain is an ordered list of probes. The first hit wins.
type Chain []Probe

// Eval runs the probes in order and returns the first hit along with the
// errors of the probes that missed before it.
func (c Chain) Eval(ctx context.Context, p *Page) (string, []error) {
	var errs []error
	for _, pr := range c {
		if ctx.Err() != nil {
			return "", append(errs, ctx.Err())
		}
		r := pr.Probe(ctx, p)
		if r.Hit() {
			return r.Value, errs
		}
		err := r.Err
		if err == nil {
			err = ErrEmpty
		}
		errs = append(errs, fmt.Errorf("%s: %w", pr.Name(), err))
	}
	return "", errs
}

// FieldSpec binds a chain to a field slot. Sentinel is stored when the chain
// misses entirely.
type FieldSpec struct {
	Field    FieldName
	Chain    Chain
	Sentinel string
}

// FieldMiss records a field whose chain missed.
type FieldMiss struct {
	Field FieldName
	Errs  []error
}

func (m FieldMiss) Error() string {
	return fmt.Sprintf("%s: %v", m.Field, errors.Join(m.Errs...))
}

// Extractor fills Fields from a page. It is the only place sentinels are
// applied.
type Extractor []FieldSpec

// Extract evaluates every field probe chain. Misses are reported, never returned as errors.
func (e Extractor) Extract(ctx context.Context, p *Page) (Fields, []FieldMiss) {
	var (
		f      Fields
		misses []FieldMiss
	)
	for _, fs := range e {
		v, errs := fs.Chain.Eval(ctx, p)
		if v == "" {
			v = fs.Sentinel
			misses = append(misses, FieldMiss{Field: fs.Field, Errs: errs})
		}
		f.Set(fs.Field, v)
	}
	return f, misses
}
