package action

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/locator"
	"github.com/tomyan/consolecap/internal/page"
	"github.com/tomyan/consolecap/internal/wait"
)

// VolumeConfig describes a volume created through the UI.
type VolumeConfig struct {
	Label  string
	Size   int
	Region string
}

// CreateVolume opens the create drawer from the empty-state button if
// present, otherwise from the global create menu, submits it and waits
// for the new row.
func (h *Helper) CreateVolume(ctx context.Context, cfg VolumeConfig) error {
	v := h.pages.Volumes
	if err := h.openCreate(ctx, v.Placeholder, "Volume", "Create a Volume"); err != nil {
		return err
	}
	if err := h.FillField(ctx, v.LabelField, cfg.Label); err != nil {
		return err
	}
	if cfg.Size > 0 {
		if err := h.FillField(ctx, v.SizeField, strconv.Itoa(cfg.Size)); err != nil {
			return err
		}
	}
	if cfg.Region != "" {
		if err := h.SelectOption(ctx, v.Region, cfg.Region); err != nil {
			return err
		}
	}
	if err := h.SubmitDrawer(ctx, v.Submit); err != nil {
		return err
	}
	h.log.Info("volume created", zap.String("label", cfg.Label))
	return h.post(ctx, "create volume", fmt.Sprintf("row for %q", cfg.Label),
		h.w.ForVisible(ctx, v.Cell(cfg.Label), h.w.Long()),
		h.observeCount(v.Cells))
}

// DeleteVolume removes the volume labelled label through its action menu.
func (h *Helper) DeleteVolume(ctx context.Context, label string) error {
	return h.deleteRow(ctx, "delete volume", h.pages.Volumes.Cell(label), "Delete", h.w.Long())
}

// DomainConfig describes a master zone created through the UI.
type DomainConfig struct {
	Domain   string
	SOAEmail string
}

// CreateDomain submits the create drawer and waits for the detail page.
func (h *Helper) CreateDomain(ctx context.Context, cfg DomainConfig) error {
	d := h.pages.Domains
	if err := h.openCreate(ctx, d.Placeholder, "Domain", "Add a new Domain"); err != nil {
		return err
	}
	if err := h.FillField(ctx, d.DomainField, cfg.Domain); err != nil {
		return err
	}
	if err := h.FillField(ctx, d.SOAField, cfg.SOAEmail); err != nil {
		return err
	}
	if err := h.SubmitDrawer(ctx, d.Submit); err != nil {
		return err
	}
	return h.post(ctx, "create domain", "domain detail page",
		h.w.ForURL(ctx, "/domains/", h.w.Long()), h.observeURL)
}

// DeleteDomain removes domain through its action menu.
func (h *Helper) DeleteDomain(ctx context.Context, domain string) error {
	return h.deleteRow(ctx, "delete domain", h.pages.Domains.Cell(domain), "Remove", h.w.Normal())
}

// UserConfig describes an account user created through the UI.
type UserConfig struct {
	Username   string
	Email      string
	Restricted bool
}

// CreateUser adds an account user and waits for the row to appear.
func (h *Helper) CreateUser(ctx context.Context, cfg UserConfig) error {
	u := h.pages.Users
	if err := h.OpenDrawer(ctx, u.Add, "Add a User"); err != nil {
		return err
	}
	if err := h.FillField(ctx, u.UsernameField, cfg.Username); err != nil {
		return err
	}
	if err := h.FillField(ctx, u.EmailField, cfg.Email); err != nil {
		return err
	}
	if cfg.Restricted {
		if err := h.Click(ctx, page.Input(u.RestrictedField)); err != nil {
			return err
		}
	}
	if err := h.SubmitDrawer(ctx, u.Submit); err != nil {
		return err
	}
	return h.post(ctx, "create user", fmt.Sprintf("row for %q", cfg.Username),
		h.w.ForVisible(ctx, u.Row(cfg.Username), h.w.Long()),
		h.observeCount(u.Rows))
}

// DeleteUser removes username through its action menu.
func (h *Helper) DeleteUser(ctx context.Context, username string) error {
	return h.deleteRow(ctx, "delete user", h.pages.Users.Row(username), "Delete", h.w.Normal())
}

// CreateToken creates a personal access token and returns the secret shown
// once in the confirmation dialog.
func (h *Helper) CreateToken(ctx context.Context, label string) (string, error) {
	tk := h.pages.Tokens
	if err := h.OpenDrawer(ctx, tk.Create, "Add a Personal Access Token"); err != nil {
		return "", err
	}
	if err := h.FillField(ctx, tk.LabelField, label); err != nil {
		return "", err
	}
	if err := h.SubmitDrawer(ctx, tk.Submit); err != nil {
		return "", err
	}
	if err := h.w.ForText(ctx, tk.Secret, h.w.Normal()); err != nil {
		return "", &PostConditionError{Action: "create token", Expected: "secret dialog", Err: err}
	}
	texts, err := locator.Texts(ctx, tk.Secret)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", &PostConditionError{Action: "create token", Expected: "secret dialog", Observed: "secret gone"}
	}
	if err := h.ConfirmDialog(ctx); err != nil {
		return "", err
	}
	if err := h.post(ctx, "create token", fmt.Sprintf("row for %q", label),
		h.w.ForVisible(ctx, tk.Row(label), h.w.Normal()),
		h.observeCount(tk.Rows)); err != nil {
		return "", err
	}
	return texts[0], nil
}

// RevokeToken revokes the token labelled label.
func (h *Helper) RevokeToken(ctx context.Context, label string) error {
	return h.deleteRow(ctx, "revoke token", h.pages.Tokens.Row(label), "Revoke", h.w.Normal())
}

// AddSSHKey adds a public key to the profile.
func (h *Helper) AddSSHKey(ctx context.Context, label, key string) error {
	s := h.pages.SSHKeys
	if err := h.OpenDrawer(ctx, s.Add, "Add SSH Key"); err != nil {
		return err
	}
	if err := h.FillField(ctx, s.LabelField, label); err != nil {
		return err
	}
	if err := h.FillField(ctx, s.KeyField, key); err != nil {
		return err
	}
	if err := h.SubmitDrawer(ctx, s.Submit); err != nil {
		return err
	}
	return h.post(ctx, "add ssh key", fmt.Sprintf("row for %q", label),
		h.w.ForVisible(ctx, s.Row(label), h.w.Normal()),
		h.observeCount(s.Rows))
}

// RemoveSSHKey deletes the key labelled label.
func (h *Helper) RemoveSSHKey(ctx context.Context, label string) error {
	return h.deleteRow(ctx, "remove ssh key", h.pages.SSHKeys.Row(label), "Delete", h.w.Normal())
}

// RebootLinode reboots the instance labelled label and waits for it to
// report running again.
func (h *Helper) RebootLinode(ctx context.Context, label string) error {
	l := h.pages.Linodes
	if err := h.SelectActionMenuItem(ctx, l.Row(label), "Reboot"); err != nil {
		return err
	}
	if err := h.ConfirmDialog(ctx); err != nil {
		return err
	}
	status := l.StatusOf(label)
	if err := h.post(ctx, "reboot linode", "status rebooting",
		h.w.ForTextEqual(ctx, status, "rebooting", h.w.Long()),
		h.observeText(status)); err != nil {
		return err
	}
	return h.post(ctx, "reboot linode", "status running",
		h.w.ForTextEqual(ctx, status, "running", h.w.Minute()),
		h.observeText(status))
}

// WaitForLinodeStatus waits for the row labelled label to show status.
func (h *Helper) WaitForLinodeStatus(ctx context.Context, label, status string) error {
	s := h.pages.Linodes.StatusOf(label)
	return h.post(ctx, "linode status", fmt.Sprintf("status %q", status),
		h.w.ForTextEqual(ctx, s, status, h.w.Minute()),
		h.observeText(s))
}

// DeleteNodeBalancer removes the NodeBalancer labelled label.
func (h *Helper) DeleteNodeBalancer(ctx context.Context, label string) error {
	return h.deleteRow(ctx, "delete nodebalancer", h.pages.NodeBalancers.Row(label), "Delete", h.w.Normal())
}

// openCreate opens a create drawer from the empty-state placeholder when
// the list is empty, otherwise from the global create menu.
func (h *Helper) openCreate(ctx context.Context, placeholder locator.Locator, menuItem, title string) error {
	hd, err := placeholder.Resolve(ctx)
	if err != nil {
		return err
	}
	if !hd.Empty() {
		return h.OpenDrawer(ctx, placeholder, title)
	}
	if err := h.SelectCreateMenuItem(ctx, menuItem); err != nil {
		return err
	}
	return h.post(ctx, "open drawer", fmt.Sprintf("drawer titled %q", title),
		h.w.ForTextEqual(ctx, h.pages.Base.DrawerTitle, title, h.w.Normal()),
		h.observeText(h.pages.Base.DrawerTitle))
}

// deleteRow picks menuItem from row's action menu, confirms and waits for
// the row to be gone.
func (h *Helper) deleteRow(ctx context.Context, name string, row locator.Locator, menuItem string, timeout wait.Timeout) error {
	if err := h.w.ForVisible(ctx, row, h.w.Normal()); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := h.SelectActionMenuItem(ctx, row, menuItem); err != nil {
		return err
	}
	if err := h.ConfirmDialog(ctx); err != nil {
		return err
	}
	return h.post(ctx, name, row.Name+" gone",
		h.w.ForExist(ctx, row, timeout, true),
		h.observeCount(row))
}
