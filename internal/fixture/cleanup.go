package fixture

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/wait"
)

// settle blocks until the settle delay has passed since the last Linode
// delete made by this client.
func (c *Client) settle(ctx context.Context) error {
	c.mu.Lock()
	last := c.lastLinodeDelete
	c.mu.Unlock()
	if last.IsZero() {
		return nil
	}
	remaining := time.Until(last.Add(c.settleDelay))
	if remaining <= 0 {
		return nil
	}
	c.logger.Info("waiting for linode delete to settle before deleting volumes",
		zap.Duration("remaining", remaining))
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DeleteVolume removes a volume. It first waits out the settle delay after
// any Linode delete, then retries failures after another settle delay up
// to the configured retry count. A 404 counts as deleted.
func (c *Client) DeleteVolume(ctx context.Context, id int) error {
	if err := c.settle(ctx); err != nil {
		return err
	}
	path := "/volumes/" + itoa(id)
	delay := c.settleDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(c.retries, retry.NewConstant(delay))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.do(ctx, http.MethodDelete, path, nil, nil)
		switch {
		case err == nil, IsNotFound(err):
			return nil
		case ctx.Err() != nil:
			return err
		default:
			c.logger.Warn("volume delete failed, retrying after settle delay",
				zap.Int("volume", id), zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
	})
}

// Cleanup removes every resource this client created, Linodes first so
// their volumes can detach. Failures are collected, never returned early.
func (c *Client) Cleanup(ctx context.Context) CleanupReport {
	c.mu.Lock()
	tracked := c.tracked
	c.tracked = nil
	c.mu.Unlock()

	byKind := make(map[Kind][]Resource)
	for _, r := range tracked {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	var report CleanupReport
	for _, kind := range Kinds() {
		for _, r := range byKind[kind] {
			err := c.Delete(ctx, r)
			if IsNotFound(err) {
				err = nil
			}
			report.add(r, err)
		}
	}
	c.logReport("fixture cleanup", report)
	return report
}

// WaitForLinodeStatus polls until the instance reports status and
// returns the last observed state.
func (c *Client) WaitForLinodeStatus(ctx context.Context, id int, status string, timeout wait.Timeout) (*Linode, error) {
	var last *Linode
	err := wait.Poll(ctx, c.logger, c.statusPoll, timeout, wait.Condition{
		Description: fmt.Sprintf("linode %d to be %s", id, status),
		Check: func(ctx context.Context) (bool, error) {
			l, err := c.GetLinode(ctx, id)
			if err != nil {
				return false, err
			}
			last = l
			return l.Status == status, nil
		},
	})
	return last, err
}

// DeleteAllLinodes removes every instance on the account.
func (c *Client) DeleteAllLinodes(ctx context.Context) CleanupReport {
	linodes, err := c.ListLinodes(ctx)
	if err != nil {
		return listFailure(KindLinode, err)
	}
	var report CleanupReport
	for _, l := range linodes {
		report.add(Resource{Kind: KindLinode, ID: itoa(l.ID), Label: l.Label}, ignoreNotFound(c.DeleteLinode(ctx, l.ID)))
	}
	return report
}

// DeleteAllVolumes removes every volume on the account, honouring the
// settle delay after any Linode delete.
func (c *Client) DeleteAllVolumes(ctx context.Context) CleanupReport {
	volumes, err := c.ListVolumes(ctx)
	if err != nil {
		return listFailure(KindVolume, err)
	}
	var report CleanupReport
	for _, v := range volumes {
		report.add(Resource{Kind: KindVolume, ID: itoa(v.ID), Label: v.Label}, c.DeleteVolume(ctx, v.ID))
	}
	return report
}

// DeleteAllDomains removes every zone on the account.
func (c *Client) DeleteAllDomains(ctx context.Context) CleanupReport {
	domains, err := c.ListDomains(ctx)
	if err != nil {
		return listFailure(KindDomain, err)
	}
	var report CleanupReport
	for _, d := range domains {
		r := Resource{Kind: KindDomain, ID: itoa(d.ID), Label: d.Domain}
		report.add(r, ignoreNotFound(c.Delete(ctx, r)))
	}
	return report
}

// RemoveNodeBalancers removes every NodeBalancer on the account.
func (c *Client) RemoveNodeBalancers(ctx context.Context) CleanupReport {
	nbs, err := c.ListNodeBalancers(ctx)
	if err != nil {
		return listFailure(KindNodeBalancer, err)
	}
	var report CleanupReport
	for _, nb := range nbs {
		r := Resource{Kind: KindNodeBalancer, ID: itoa(nb.ID), Label: nb.Label}
		report.add(r, ignoreNotFound(c.Delete(ctx, r)))
	}
	return report
}

// RemoveSSHKeys removes every key on the profile.
func (c *Client) RemoveSSHKeys(ctx context.Context) CleanupReport {
	keys, err := c.ListSSHKeys(ctx)
	if err != nil {
		return listFailure(KindSSHKey, err)
	}
	var report CleanupReport
	for _, k := range keys {
		r := Resource{Kind: KindSSHKey, ID: itoa(k.ID), Label: k.Label}
		report.add(r, ignoreNotFound(c.Delete(ctx, r)))
	}
	return report
}

// RevokeTestTokens revokes tokens whose label starts with LabelPrefix,
// leaving the token the suite authenticates with alone.
func (c *Client) RevokeTestTokens(ctx context.Context) CleanupReport {
	tokens, err := c.ListTokens(ctx)
	if err != nil {
		return listFailure(KindToken, err)
	}
	var report CleanupReport
	for _, t := range tokens {
		if !strings.HasPrefix(t.Label, LabelPrefix) {
			continue
		}
		r := Resource{Kind: KindToken, ID: itoa(t.ID), Label: t.Label}
		report.add(r, ignoreNotFound(c.Delete(ctx, r)))
	}
	return report
}

// RemoveTestUsers removes every account user except those named in keep.
func (c *Client) RemoveTestUsers(ctx context.Context, keep ...string) CleanupReport {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return listFailure(KindUser, err)
	}
	skip := make(map[string]bool, len(keep))
	for _, k := range keep {
		skip[k] = true
	}
	var report CleanupReport
	for _, u := range users {
		if skip[u.Username] {
			continue
		}
		r := Resource{Kind: KindUser, ID: u.Username, Label: u.Email}
		report.add(r, ignoreNotFound(c.Delete(ctx, r)))
	}
	return report
}

// CleanAccount removes everything on the account, not just tracked
// resources. keepUsers are left in place.
func (c *Client) CleanAccount(ctx context.Context, keepUsers ...string) CleanupReport {
	var report CleanupReport
	report.Merge(c.DeleteAllLinodes(ctx))
	report.Merge(c.DeleteAllVolumes(ctx))
	report.Merge(c.RemoveNodeBalancers(ctx))
	report.Merge(c.DeleteAllDomains(ctx))
	report.Merge(c.RemoveTestUsers(ctx, keepUsers...))
	report.Merge(c.RevokeTestTokens(ctx))
	report.Merge(c.RemoveSSHKeys(ctx))

	c.mu.Lock()
	c.tracked = nil
	c.mu.Unlock()

	c.logReport("account cleanup", report)
	return report
}

func (c *Client) logReport(msg string, report CleanupReport) {
	errs := report.Errors()
	for _, ce := range errs {
		c.logger.Warn("cleanup failed",
			zap.String("kind", string(ce.Kind)),
			zap.String("id", ce.ID),
			zap.String("label", ce.Label),
			zap.Error(ce.Err))
	}
	c.logger.Info(msg,
		zap.Int("removed", len(report.Removed())),
		zap.Int("failed", len(errs)))
}

func listFailure(kind Kind, err error) CleanupReport {
	var report CleanupReport
	report.add(Resource{Kind: kind, ID: "*"}, fmt.Errorf("listing %ss: %w", kind, err))
	return report
}

func ignoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
