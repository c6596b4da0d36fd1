package fixture

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest declares the fixtures a scenario needs.
//
//	linodes:
//	  - label: web1
//	    tags: [e2e]
//	volumes:
//	  - label: data1
//	    size: 20
//	    linode: web1
type Manifest struct {
	Linodes       []LinodeOptions       `yaml:"linodes"`
	Volumes       []ManifestVolume      `yaml:"volumes"`
	Domains       []DomainOptions       `yaml:"domains"`
	NodeBalancers []NodeBalancerOptions `yaml:"nodebalancers"`
	Users         []UserOptions         `yaml:"users"`
	SSHKeys       []SSHKeyOptions       `yaml:"ssh_keys"`
}

// ManifestVolume is a volume optionally attached to a manifest Linode by
// label.
type ManifestVolume struct {
	VolumeOptions `yaml:",inline"`
	Linode        string `yaml:"linode"`
}

// Applied holds what Apply created.
type Applied struct {
	Linodes       []Linode
	Volumes       []Volume
	Domains       []Domain
	NodeBalancers []NodeBalancer
	Users         []User
	SSHKeys       []SSHKey
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest, rejecting unknown keys.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Apply creates the manifest's resources, Linodes first so volumes can
// reference them. Everything created stays tracked even if a later step
// fails, so Cleanup still removes it.
func (c *Client) Apply(ctx context.Context, m *Manifest) (*Applied, error) {
	out := &Applied{}
	byLabel := make(map[string]int)

	for _, o := range m.Linodes {
		l, err := c.CreateLinode(ctx, o)
		if err != nil {
			return out, fmt.Errorf("linode %q: %w", o.Label, err)
		}
		out.Linodes = append(out.Linodes, *l)
		if o.Label != "" {
			byLabel[o.Label] = l.ID
		}
	}

	for _, mv := range m.Volumes {
		opts := mv.VolumeOptions
		if mv.Linode != "" {
			id, ok := byLabel[mv.Linode]
			if !ok {
				return out, fmt.Errorf("volume %q: unknown linode %q", opts.Label, mv.Linode)
			}
			opts.LinodeID = &id
		}
		v, err := c.CreateVolume(ctx, opts)
		if err != nil {
			return out, fmt.Errorf("volume %q: %w", opts.Label, err)
		}
		out.Volumes = append(out.Volumes, *v)
	}

	for _, o := range m.Domains {
		d, err := c.CreateDomain(ctx, o)
		if err != nil {
			return out, fmt.Errorf("domain %q: %w", o.Domain, err)
		}
		out.Domains = append(out.Domains, *d)
	}

	for _, o := range m.NodeBalancers {
		nb, err := c.CreateNodeBalancer(ctx, o)
		if err != nil {
			return out, fmt.Errorf("nodebalancer %q: %w", o.Label, err)
		}
		out.NodeBalancers = append(out.NodeBalancers, *nb)
	}

	for _, o := range m.Users {
		u, err := c.CreateUser(ctx, o)
		if err != nil {
			return out, fmt.Errorf("user %q: %w", o.Username, err)
		}
		out.Users = append(out.Users, *u)
	}

	for _, o := range m.SSHKeys {
		k, err := c.AddSSHKey(ctx, o)
		if err != nil {
			return out, fmt.Errorf("ssh key %q: %w", o.Label, err)
		}
		out.SSHKeys = append(out.SSHKeys, *k)
	}

	return out, nil
}
