package fixture

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
)

// Kind names a resource type.
type Kind string

const (
	KindLinode       Kind = "linode"
	KindVolume       Kind = "volume"
	KindDomain       Kind = "domain"
	KindNodeBalancer Kind = "nodebalancer"
	KindUser         Kind = "user"
	KindToken        Kind = "token"
	KindSSHKey       Kind = "sshkey"
)

// Kinds lists every resource kind in cleanup order.
func Kinds() []Kind {
	return []Kind{KindLinode, KindVolume, KindNodeBalancer, KindDomain, KindUser, KindToken, KindSSHKey}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Resource is a created object tracked for cleanup.
type Resource struct {
	Kind  Kind   `json:"kind"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (c *Client) track(r Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = append(c.tracked, r)
	c.logger.Debug("tracking fixture", zap.String("kind", string(r.Kind)), zap.String("id", r.ID), zap.String("label", r.Label))
}

// Tracked returns the resources created by this client and not yet cleaned up.
func (c *Client) Tracked() []Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Resource(nil), c.tracked...)
}

func itoa(id int) string { return strconv.Itoa(id) }

// Linode is a compute instance.
type Linode struct {
	ID     int      `json:"id"`
	Label  string   `json:"label"`
	Status string   `json:"status"`
	Region string   `json:"region"`
	Type   string   `json:"type"`
	Image  string   `json:"image"`
	Tags   []string `json:"tags"`
	IPv4   []string `json:"ipv4"`
}

// LinodeOptions is the create request for a Linode. Empty fields get
// defaults; RootPass is always random when unset.
type LinodeOptions struct {
	Label          string   `json:"label,omitempty" yaml:"label" validate:"omitempty,min=3,max=64"`
	Region         string   `json:"region" yaml:"region" validate:"required"`
	Type           string   `json:"type" yaml:"type" validate:"required"`
	Image          string   `json:"image,omitempty" yaml:"image"`
	RootPass       string   `json:"root_pass,omitempty" yaml:"-" validate:"omitempty,min=11,max=128"`
	Tags           []string `json:"tags,omitempty" yaml:"tags"`
	PrivateIP      bool     `json:"private_ip,omitempty" yaml:"private_ip"`
	AuthorizedKeys []string `json:"authorized_keys,omitempty" yaml:"authorized_keys"`
}

const (
	DefaultRegion = "us-east"
	DefaultType   = "g6-standard-1"
	DefaultImage  = "linode/debian12"
)

func (o *LinodeOptions) defaults() {
	if o.Region == "" {
		o.Region = DefaultRegion
	}
	if o.Type == "" {
		o.Type = DefaultType
	}
	if o.Image == "" {
		o.Image = DefaultImage
	}
	if o.Label == "" {
		o.Label = Label("lin")
	}
	if o.RootPass == "" {
		o.RootPass = RootPassword()
	}
}

// CreateLinode provisions an instance and tracks it.
func (c *Client) CreateLinode(ctx context.Context, opts LinodeOptions) (*Linode, error) {
	opts.defaults()
	if err := c.check(KindLinode, opts); err != nil {
		return nil, err
	}
	var l Linode
	if err := c.do(ctx, http.MethodPost, "/linode/instances", opts, &l); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindLinode, ID: itoa(l.ID), Label: l.Label})
	return &l, nil
}

// CreateLinodes provisions n default instances.
func (c *Client) CreateLinodes(ctx context.Context, n int) ([]Linode, error) {
	out := make([]Linode, 0, n)
	for i := 0; i < n; i++ {
		l, err := c.CreateLinode(ctx, LinodeOptions{})
		if err != nil {
			return out, fmt.Errorf("creating linode %d of %d: %w", i+1, n, err)
		}
		out = append(out, *l)
	}
	return out, nil
}

// GetLinode fetches one instance.
func (c *Client) GetLinode(ctx context.Context, id int) (*Linode, error) {
	var l Linode
	if err := c.do(ctx, http.MethodGet, "/linode/instances/"+itoa(id), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLinodes returns every instance on the account.
func (c *Client) ListLinodes(ctx context.Context) ([]Linode, error) {
	return list[Linode](ctx, c, "/linode/instances")
}

// DeleteLinode removes an instance and starts the volume settle window.
func (c *Client) DeleteLinode(ctx context.Context, id int) error {
	err := c.do(ctx, http.MethodDelete, "/linode/instances/"+itoa(id), nil, nil)
	if err == nil || IsNotFound(err) {
		c.mu.Lock()
		c.lastLinodeDelete = time.Now()
		c.mu.Unlock()
	}
	return err
}

// Volume is a block storage volume.
type Volume struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	Size     int    `json:"size"`
	Region   string `json:"region"`
	Status   string `json:"status"`
	LinodeID *int   `json:"linode_id"`
}

// VolumeOptions is the create request for a volume. Region may be omitted
// when the volume is attached to a Linode.
type VolumeOptions struct {
	Label    string `json:"label" yaml:"label" validate:"required,min=1,max=32"`
	Size     int    `json:"size" yaml:"size" validate:"min=10,max=10240"`
	Region   string `json:"region,omitempty" yaml:"region" validate:"required_without=LinodeID"`
	LinodeID *int   `json:"linode_id,omitempty" yaml:"-"`
}

// CreateVolume provisions a volume and tracks it.
func (c *Client) CreateVolume(ctx context.Context, opts VolumeOptions) (*Volume, error) {
	if opts.Size == 0 {
		opts.Size = 10
	}
	if err := c.check(KindVolume, opts); err != nil {
		return nil, err
	}
	var v Volume
	if err := c.do(ctx, http.MethodPost, "/volumes", opts, &v); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindVolume, ID: itoa(v.ID), Label: v.Label})
	return &v, nil
}

// CreateVolumes provisions each volume in order, stopping at the first
// failure. Volumes created before the failure stay tracked.
func (c *Client) CreateVolumes(ctx context.Context, opts []VolumeOptions) ([]Volume, error) {
	out := make([]Volume, 0, len(opts))
	for _, o := range opts {
		v, err := c.CreateVolume(ctx, o)
		if err != nil {
			return out, fmt.Errorf("creating volume %q: %w", o.Label, err)
		}
		out = append(out, *v)
	}
	return out, nil
}

// ListVolumes returns every volume on the account.
func (c *Client) ListVolumes(ctx context.Context) ([]Volume, error) {
	return list[Volume](ctx, c, "/volumes")
}

// Domain is a DNS zone.
type Domain struct {
	ID       int    `json:"id"`
	Domain   string `json:"domain"`
	Type     string `json:"type"`
	SOAEmail string `json:"soa_email"`
	Status   string `json:"status"`
}

// DomainOptions is the create request for a zone.
type DomainOptions struct {
	Domain   string `json:"domain" yaml:"domain" validate:"required,fqdn"`
	Type     string `json:"type" yaml:"type" validate:"oneof=master slave"`
	SOAEmail string `json:"soa_email,omitempty" yaml:"soa_email" validate:"omitempty,email"`
}

// CreateDomain creates a zone and tracks it. Master zones without an SOA
// address get a random one.
func (c *Client) CreateDomain(ctx context.Context, opts DomainOptions) (*Domain, error) {
	if opts.Type == "" {
		opts.Type = "master"
	}
	if opts.Type == "master" && opts.SOAEmail == "" {
		opts.SOAEmail = gofakeit.Email()
	}
	if err := c.check(KindDomain, opts); err != nil {
		return nil, err
	}
	var d Domain
	if err := c.do(ctx, http.MethodPost, "/domains", opts, &d); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindDomain, ID: itoa(d.ID), Label: d.Domain})
	return &d, nil
}

// ListDomains returns every zone on the account.
func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	return list[Domain](ctx, c, "/domains")
}

// NodeBalancer is a load balancer.
type NodeBalancer struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	Region   string `json:"region"`
	Hostname string `json:"hostname"`
}

// NodeBalancerOptions is the create request for a NodeBalancer.
type NodeBalancerOptions struct {
	Label  string `json:"label,omitempty" yaml:"label" validate:"omitempty,min=3,max=32"`
	Region string `json:"region" yaml:"region" validate:"required"`
}

// CreateNodeBalancer creates a load balancer and tracks it.
func (c *Client) CreateNodeBalancer(ctx context.Context, opts NodeBalancerOptions) (*NodeBalancer, error) {
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	if opts.Label == "" {
		opts.Label = Label("nb")
	}
	if err := c.check(KindNodeBalancer, opts); err != nil {
		return nil, err
	}
	var nb NodeBalancer
	if err := c.do(ctx, http.MethodPost, "/nodebalancers", opts, &nb); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindNodeBalancer, ID: itoa(nb.ID), Label: nb.Label})
	return &nb, nil
}

// ListNodeBalancers returns every NodeBalancer on the account.
func (c *Client) ListNodeBalancers(ctx context.Context) ([]NodeBalancer, error) {
	return list[NodeBalancer](ctx, c, "/nodebalancers")
}

// User is an account user.
type User struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Restricted bool   `json:"restricted"`
}

// UserOptions is the create request for a user.
type UserOptions struct {
	Username   string `json:"username" yaml:"username" validate:"required,min=3,max=32"`
	Email      string `json:"email" yaml:"email" validate:"required,email"`
	Restricted bool   `json:"restricted" yaml:"restricted"`
}

// CreateUser adds an account user and tracks it.
func (c *Client) CreateUser(ctx context.Context, opts UserOptions) (*User, error) {
	if opts.Email == "" {
		opts.Email = gofakeit.Email()
	}
	if err := c.check(KindUser, opts); err != nil {
		return nil, err
	}
	var u User
	if err := c.do(ctx, http.MethodPost, "/account/users", opts, &u); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindUser, ID: u.Username, Label: u.Email})
	return &u, nil
}

// ListUsers returns every account user.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	return list[User](ctx, c, "/account/users")
}

// Token is a personal access token. Secret is only set on create.
type Token struct {
	ID     int    `json:"id"`
	Label  string `json:"label"`
	Scopes string `json:"scopes"`
	Secret string `json:"token,omitempty"`
	Expiry string `json:"expiry,omitempty"`
}

// TokenOptions is the create request for a token.
type TokenOptions struct {
	Label  string `json:"label" yaml:"label" validate:"required,max=100"`
	Scopes string `json:"scopes" yaml:"scopes"`
	Expiry string `json:"expiry,omitempty" yaml:"expiry"`
}

// CreateToken issues a personal access token and tracks it.
func (c *Client) CreateToken(ctx context.Context, opts TokenOptions) (*Token, error) {
	if opts.Scopes == "" {
		opts.Scopes = "*"
	}
	if err := c.check(KindToken, opts); err != nil {
		return nil, err
	}
	var t Token
	if err := c.do(ctx, http.MethodPost, "/profile/tokens", opts, &t); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindToken, ID: itoa(t.ID), Label: t.Label})
	return &t, nil
}

// ListTokens returns the profile's tokens.
func (c *Client) ListTokens(ctx context.Context) ([]Token, error) {
	return list[Token](ctx, c, "/profile/tokens")
}

// SSHKey is a public key on the profile.
type SSHKey struct {
	ID     int    `json:"id"`
	Label  string `json:"label"`
	SSHKey string `json:"ssh_key"`
}

// SSHKeyOptions is the create request for a key.
type SSHKeyOptions struct {
	Label  string `json:"label" yaml:"label" validate:"required,max=64"`
	SSHKey string `json:"ssh_key" yaml:"ssh_key" validate:"required,startswith=ssh-"`
}

// AddSSHKey uploads a public key and tracks it.
func (c *Client) AddSSHKey(ctx context.Context, opts SSHKeyOptions) (*SSHKey, error) {
	if err := c.check(KindSSHKey, opts); err != nil {
		return nil, err
	}
	var k SSHKey
	if err := c.do(ctx, http.MethodPost, "/profile/sshkeys", opts, &k); err != nil {
		return nil, err
	}
	c.track(Resource{Kind: KindSSHKey, ID: itoa(k.ID), Label: k.Label})
	return &k, nil
}

// ListSSHKeys returns the profile's keys.
func (c *Client) ListSSHKeys(ctx context.Context) ([]SSHKey, error) {
	return list[SSHKey](ctx, c, "/profile/sshkeys")
}

var deletePaths = map[Kind]string{
	KindLinode:       "/linode/instances/",
	KindVolume:       "/volumes/",
	KindDomain:       "/domains/",
	KindNodeBalancer: "/nodebalancers/",
	KindUser:         "/account/users/",
	KindToken:        "/profile/tokens/",
	KindSSHKey:       "/profile/sshkeys/",
}

// Delete removes one resource. Linode and volume deletes go through
// DeleteLinode and DeleteVolume so the settle delay is honoured.
func (c *Client) Delete(ctx context.Context, r Resource) error {
	switch r.Kind {
	case KindLinode:
		id, err := strconv.Atoi(r.ID)
		if err != nil {
			return fmt.Errorf("linode id %q: %w", r.ID, err)
		}
		return c.DeleteLinode(ctx, id)
	case KindVolume:
		id, err := strconv.Atoi(r.ID)
		if err != nil {
			return fmt.Errorf("volume id %q: %w", r.ID, err)
		}
		return c.DeleteVolume(ctx, id)
	}
	prefix, ok := deletePaths[r.Kind]
	if !ok {
		return fmt.Errorf("unknown resource kind %q", r.Kind)
	}
	return c.do(ctx, http.MethodDelete, prefix+r.ID, nil, nil)
}
