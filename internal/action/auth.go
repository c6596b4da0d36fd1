package action

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// Login signs in through the identity provider at loginURL and waits for
// the console shell to render.
func (h *Helper) Login(ctx context.Context, loginURL, username, password string) error {
	lp := h.pages.Login
	if err := h.d.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("navigating to login: %w", err)
	}
	if err := h.fillInput(ctx, "username", lp.Username, username); err != nil {
		return err
	}
	if err := h.fillInput(ctx, "password", lp.Password, password); err != nil {
		return err
	}
	if err := h.Click(ctx, lp.Submit); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	h.log.Debug("login submitted", zap.String("username", username))

	if host := hostOf(h.baseURL); host != "" {
		if err := h.post(ctx, "login", "console url "+host,
			h.w.ForURL(ctx, host, h.w.Long()), h.observeURL); err != nil {
			return err
		}
	}
	return h.post(ctx, "login", "user menu",
		h.w.ForVisible(ctx, h.pages.Base.UserMenu, h.w.Long()),
		h.observeText(lp.Error))
}

// Logout signs out through the user menu.
func (h *Helper) Logout(ctx context.Context) error {
	base := h.pages.Base
	if err := h.Click(ctx, base.UserMenu); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := h.Click(ctx, base.Logout); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return h.post(ctx, "logout", "login page",
		h.w.ForURL(ctx, "login", h.w.Long()), h.observeURL)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
