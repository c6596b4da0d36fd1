package driver

import (
	"encoding/json"
	"fmt"
)

// ResolveJS returns a JavaScript expression that evaluates to the element
// addressed by ref, or null when any step has no match.
func ResolveJS(ref Ref) string {
	steps, _ := json.Marshal(stepsOrEmpty(ref))
	return fmt.Sprintf(`(function() {
		let el = document;
		for (const s of %s) {
			const all = el.querySelectorAll(s.selector);
			el = all[s.index] || null;
			if (!el) return null;
		}
		return el === document ? document.documentElement : el;
	})()`, steps)
}

// CountJS returns an expression counting matches of selector inside scope.
// It evaluates to -1 when the scope itself no longer resolves.
func CountJS(scope Ref, selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(function() {
		const root = %s;
		if (!root) return -1;
		return root.querySelectorAll(%s).length;
	})()`, ResolveJS(scope), sel)
}

// Script wraps body so that it runs with the resolved element bound to el.
// The expression evaluates to {"stale": true} if ref does not resolve,
// otherwise to {"value": <result of body>}.
func Script(ref Ref, body string) string {
	return fmt.Sprintf(`(function() {
		const el = %s;
		if (!el) return { stale: true };
		return { value: (function(el) { %s })(el) };
	})()`, ResolveJS(ref), body)
}

// ScriptResult is the decoded value of an expression built by Script.
type ScriptResult struct {
	Stale bool            `json:"stale"`
	Value json.RawMessage `json:"value"`
}

// DecodeScript decodes raw JSON produced by a Script expression into v.
// It returns ErrStale when the element did not resolve.
func DecodeScript(raw []byte, v interface{}) error {
	var res ScriptResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("parsing script result: %w", err)
	}
	if res.Stale {
		return ErrStale
	}
	if v == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, v); err != nil {
		return fmt.Errorf("parsing script value: %w", err)
	}
	return nil
}

// Shared element bodies for Script. Every backend evaluates the same
// snippets so behaviour does not drift between them.
const (
	TextBody = `return el.innerText || el.textContent || '';`

	AttributeBody = `
		const n = %s;
		if (n === 'value' && 'value' in el) return { present: true, value: String(el.value) };
		if (!el.hasAttribute(n)) return { present: false, value: '' };
		return { present: true, value: el.getAttribute(n) };`

	VisibleBody = `
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		return style.display !== 'none' &&
		       style.visibility !== 'hidden' &&
		       style.opacity !== '0' &&
		       rect.width > 0 && rect.height > 0;`

	CenterBody = `
		el.scrollIntoView({ block: 'center', inline: 'center' });
		const rect = el.getBoundingClientRect();
		return { x: rect.left + rect.width / 2, y: rect.top + rect.height / 2 };`

	FocusBody = `el.focus(); return true;`

	SetValueBody = `
		const v = %s;
		const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
			: el instanceof HTMLSelectElement ? HTMLSelectElement.prototype
			: HTMLInputElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
		setter.call(el, v);
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return el.value;`

	ClearBody = `
		const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, '');
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.focus();
		return true;`
)

// AttributeResult is the value produced by AttributeBody.
type AttributeResult struct {
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

// Point is the value produced by CenterBody.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AttributeScript returns a Script reading attribute name from ref.
func AttributeScript(ref Ref, name string) string {
	n, _ := json.Marshal(name)
	return Script(ref, fmt.Sprintf(AttributeBody, n))
}

// SetValueScript returns a Script assigning value to ref.
func SetValueScript(ref Ref, value string) string {
	v, _ := json.Marshal(value)
	return Script(ref, fmt.Sprintf(SetValueBody, v))
}

func stepsOrEmpty(ref Ref) Ref {
	if ref == nil {
		return Ref{}
	}
	return ref
}
