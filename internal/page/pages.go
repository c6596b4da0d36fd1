package page

import (
	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/locator"
)

// Login is the identity provider's sign-in form.
type Login struct {
	Username locator.Locator
	Password locator.Locator
	Submit   locator.Locator
	Error    locator.Locator
}

func NewLogin(d driver.Driver) Login {
	b := locator.On(d, "login")
	return Login{
		Username: b.CSS("username", "input[name=username]"),
		Password: b.CSS("password", "input[name=password]"),
		Submit:   b.CSS("submit", "button[type=submit]"),
		Error:    b.CSS("error", "[role=alert]"),
	}
}

// Linodes is the instance list.
type Linodes struct {
	b locator.Builder

	Header      locator.Locator
	Placeholder locator.Locator
	Rows        locator.Locator
	Label       locator.Locator
	Status      locator.Locator
	ListToggle  locator.Locator
	GridToggle  locator.Locator
}

func NewLinodes(d driver.Driver) Linodes {
	b := locator.On(d, "linodes")
	return Linodes{
		b:           b,
		Header:      b.QAValue("title", "Linodes"),
		Placeholder: b.QA("placeholder-button"),
		Rows:        b.QA("linode"),
		Label:       b.QA("label"),
		Status:      b.QA("status"),
		ListToggle:  b.QA("view-list"),
		GridToggle:  b.QA("view-grid"),
	}
}

// Row locates the instance row labelled label.
func (p Linodes) Row(label string) locator.Locator {
	return p.b.QAValue("linode", label)
}

// StatusOf locates the status cell of the row labelled label.
func (p Linodes) StatusOf(label string) locator.Locator {
	return p.Status.Within(p.Row(label))
}

// Volumes is the block storage list and its create drawer.
type Volumes struct {
	b locator.Builder

	Header      locator.Locator
	Placeholder locator.Locator
	Cells       locator.Locator
	CellLabel   locator.Locator
	Size        locator.Locator
	AttachedTo  locator.Locator
	LabelField  locator.Locator
	SizeField   locator.Locator
	Region      locator.Locator
	Submit      locator.Locator
}

func NewVolumes(d driver.Driver) Volumes {
	b := locator.On(d, "volumes")
	return Volumes{
		b:           b,
		Header:      b.QAValue("title", "Volumes"),
		Placeholder: b.QA("placeholder-button"),
		Cells:       b.QA("volume-cell"),
		CellLabel:   b.QA("volume-cell-label"),
		Size:        b.QA("volume-size"),
		AttachedTo:  b.QA("volume-cell-attachment"),
		LabelField:  b.QA("volume-label"),
		SizeField:   b.QA("size"),
		Region:      b.QA("select-region"),
		Submit:      b.QA("submit"),
	}
}

// Cell locates the volume row labelled label.
func (p Volumes) Cell(label string) locator.Locator {
	return p.b.QAValue("volume-cell", label)
}

// Domains is the DNS manager.
type Domains struct {
	b locator.Builder

	Header      locator.Locator
	Placeholder locator.Locator
	Create      locator.Locator
	Cells       locator.Locator
	DomainField locator.Locator
	SOAField    locator.Locator
	Submit      locator.Locator
}

func NewDomains(d driver.Driver) Domains {
	b := locator.On(d, "domains")
	return Domains{
		b:           b,
		Header:      b.QAValue("title", "Domains"),
		Placeholder: b.QA("placeholder-button"),
		Create:      b.QAValue("icon-text-link", "Add a Domain"),
		Cells:       b.QA("domain-cell"),
		DomainField: b.QA("domain-name"),
		SOAField:    b.QA("soa-email"),
		Submit:      b.QA("submit"),
	}
}

// Cell locates the row for domain.
func (p Domains) Cell(domain string) locator.Locator {
	return p.b.QAValue("domain-cell", domain)
}

// NodeBalancers is the load balancer list.
type NodeBalancers struct {
	b locator.Builder

	Header      locator.Locator
	Placeholder locator.Locator
	Rows        locator.Locator
}

func NewNodeBalancers(d driver.Driver) NodeBalancers {
	b := locator.On(d, "nodebalancers")
	return NodeBalancers{
		b:           b,
		Header:      b.QAValue("title", "NodeBalancers"),
		Placeholder: b.QA("placeholder-button"),
		Rows:        b.QA("nodebalancer-cell"),
	}
}

// Row locates the NodeBalancer labelled label.
func (p NodeBalancers) Row(label string) locator.Locator {
	return p.b.QAValue("nodebalancer-cell", label)
}

// Users is the account user management screen.
type Users struct {
	b locator.Builder

	Header          locator.Locator
	Add             locator.Locator
	Rows            locator.Locator
	UsernameCell    locator.Locator
	EmailCell       locator.Locator
	UsernameField   locator.Locator
	EmailField      locator.Locator
	RestrictedField locator.Locator
	Submit          locator.Locator
}

func NewUsers(d driver.Driver) Users {
	b := locator.On(d, "users")
	return Users{
		b:               b,
		Header:          b.QAValue("title", "Users"),
		Add:             b.QAValue("icon-text-link", "Add a User"),
		Rows:            b.QA("user-row"),
		UsernameCell:    b.QA("username"),
		EmailCell:       b.QA("email"),
		UsernameField:   b.QA("create-username"),
		EmailField:      b.QA("create-email"),
		RestrictedField: b.QA("create-restricted"),
		Submit:          b.QA("submit"),
	}
}

// Row locates the row for username.
func (p Users) Row(username string) locator.Locator {
	return p.b.QAValue("user-row", username)
}

// Tokens is the personal access token table on the profile screen.
type Tokens struct {
	b locator.Builder

	Table      locator.Locator
	Create     locator.Locator
	Rows       locator.Locator
	LabelField locator.Locator
	Submit     locator.Locator
	Secret     locator.Locator
}

func NewTokens(d driver.Driver) Tokens {
	b := locator.On(d, "tokens")
	return Tokens{
		b:          b,
		Table:      b.QAValue("table", "Personal Access Tokens"),
		Create:     b.QAValue("icon-text-link", "Create a Personal Access Token"),
		Rows:       b.QA("table-row"),
		LabelField: b.QA("add-label"),
		Submit:     b.QA("submit"),
		Secret:     b.QA("copy-token"),
	}
}

// Row locates the token labelled label.
func (p Tokens) Row(label string) locator.Locator {
	return p.b.QAValue("table-row", label)
}

// SSHKeys is the SSH key list on the profile screen.
type SSHKeys struct {
	b locator.Builder

	Add        locator.Locator
	Rows       locator.Locator
	LabelField locator.Locator
	KeyField   locator.Locator
	Submit     locator.Locator
}

func NewSSHKeys(d driver.Driver) SSHKeys {
	b := locator.On(d, "sshkeys")
	return SSHKeys{
		b:          b,
		Add:        b.QAValue("icon-text-link", "Add a SSH Key"),
		Rows:       b.QA("ssh-key-row"),
		LabelField: b.QA("ssh-key-label"),
		KeyField:   b.QA("ssh-key-field"),
		Submit:     b.QA("submit"),
	}
}

// Row locates the key labelled label.
func (p SSHKeys) Row(label string) locator.Locator {
	return p.b.QAValue("ssh-key-row", label)
}

// Console bundles every page object for one driver.
type Console struct {
	Base          Base
	Login         Login
	Linodes       Linodes
	Volumes       Volumes
	Domains       Domains
	NodeBalancers NodeBalancers
	Users         Users
	Tokens        Tokens
	SSHKeys       SSHKeys
}

// New builds all page objects for d.
func New(d driver.Driver) *Console {
	return &Console{
		Base:          NewBase(d),
		Login:         NewLogin(d),
		Linodes:       NewLinodes(d),
		Volumes:       NewVolumes(d),
		Domains:       NewDomains(d),
		NodeBalancers: NewNodeBalancers(d),
		Users:         NewUsers(d),
		Tokens:        NewTokens(d),
		SSHKeys:       NewSSHKeys(d),
	}
}

// Locators returns every fixed locator in c, for validation.
func (c *Console) Locators() []locator.Locator {
	return []locator.Locator{
		c.Base.Toast, c.Base.Notice, c.Base.Progress, c.Base.DrawerTitle, c.Base.DrawerClose,
		c.Base.DrawerSubmit, c.Base.DialogTitle, c.Base.DialogConfirm, c.Base.DialogCancel,
		c.Base.Tabs, c.Base.ActionMenu, c.Base.ActionMenuItems, c.Base.GlobalCreate,
		c.Base.CreateMenuItems, c.Base.UserMenu, c.Base.Logout, c.Base.SelectOptions, c.Base.Breadcrumb,
		c.Login.Username, c.Login.Password, c.Login.Submit, c.Login.Error,
		c.Linodes.Header, c.Linodes.Placeholder, c.Linodes.Rows, c.Linodes.Label, c.Linodes.Status,
		c.Linodes.ListToggle, c.Linodes.GridToggle,
		c.Volumes.Header, c.Volumes.Placeholder, c.Volumes.Cells, c.Volumes.CellLabel, c.Volumes.Size,
		c.Volumes.AttachedTo, c.Volumes.LabelField, c.Volumes.SizeField, c.Volumes.Region, c.Volumes.Submit,
		c.Domains.Header, c.Domains.Placeholder, c.Domains.Create, c.Domains.Cells, c.Domains.DomainField,
		c.Domains.SOAField, c.Domains.Submit,
		c.NodeBalancers.Header, c.NodeBalancers.Placeholder, c.NodeBalancers.Rows,
		c.Users.Header, c.Users.Add, c.Users.Rows, c.Users.UsernameCell, c.Users.EmailCell,
		c.Users.UsernameField, c.Users.EmailField, c.Users.RestrictedField, c.Users.Submit,
		c.Tokens.Table, c.Tokens.Create, c.Tokens.Rows, c.Tokens.LabelField, c.Tokens.Submit, c.Tokens.Secret,
		c.SSHKeys.Add, c.SSHKeys.Rows, c.SSHKeys.LabelField, c.SSHKeys.KeyField, c.SSHKeys.Submit,
	}
}
