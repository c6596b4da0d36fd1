package chrome

import (
	"context"
	"fmt"
)

// TargetInfo describes one browser target.
type TargetInfo struct {
	ID    string `json:"targetId"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Targets lists the browser's targets of the given type, or all of them
// when typ is empty.
func (c *Client) Targets(ctx context.Context, typ string) ([]TargetInfo, error) {
	var resp struct {
		TargetInfos []TargetInfo `json:"targetInfos"`
	}
	if err := c.call(ctx, "", "Target.getTargets", nil, &resp); err != nil {
		return nil, err
	}
	if typ == "" {
		return resp.TargetInfos, nil
	}
	out := resp.TargetInfos[:0]
	for _, t := range resp.TargetInfos {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) createPage(ctx context.Context) (string, error) {
	var resp struct {
		TargetID string `json:"targetId"`
	}
	if err := c.call(ctx, "", "Target.createTarget", map[string]string{"url": "about:blank"}, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoPage, err)
	}
	return resp.TargetID, nil
}

// attach returns the flattened session for target, reusing one already
// attached.
func (c *Client) attach(ctx context.Context, target string) (string, error) {
	c.mu.Lock()
	session, ok := c.attached[target]
	c.mu.Unlock()
	if ok {
		return session, nil
	}

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	params := map[string]interface{}{"targetId": target, "flatten": true}
	if err := c.call(ctx, "", "Target.attachToTarget", params, &resp); err != nil {
		return "", fmt.Errorf("attaching to %s: %w", target, err)
	}

	c.mu.Lock()
	c.attached[target] = resp.SessionID
	c.mu.Unlock()
	return resp.SessionID, nil
}
