// Package page holds the console's page objects. Each page object is
// built once per driver and contains only locator definitions; anything
// that varies per test (a label, a tab name) is a method argument.
package page

import (
	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/locator"
)

// Base covers the chrome shared by every console screen.
type Base struct {
	b locator.Builder

	Toast           locator.Locator
	Notice          locator.Locator
	Progress        locator.Locator
	DrawerTitle     locator.Locator
	DrawerClose     locator.Locator
	DrawerSubmit    locator.Locator
	DialogTitle     locator.Locator
	DialogConfirm   locator.Locator
	DialogCancel    locator.Locator
	Tabs            locator.Locator
	ActionMenu      locator.Locator
	ActionMenuItems locator.Locator
	GlobalCreate    locator.Locator
	CreateMenuItems locator.Locator
	UserMenu        locator.Locator
	Logout          locator.Locator
	SelectOptions   locator.Locator
	Breadcrumb      locator.Locator
}

// NewBase returns the shared locators for d.
func NewBase(d driver.Driver) Base {
	b := locator.On(d, "base")
	return Base{
		b:               b,
		Toast:           b.QA("toast"),
		Notice:          b.QA("notice"),
		Progress:        b.QA("circle-progress"),
		DrawerTitle:     b.QA("drawer-title"),
		DrawerClose:     b.QA("close-drawer"),
		DrawerSubmit:    b.QA("submit"),
		DialogTitle:     b.QA("dialog-title"),
		DialogConfirm:   b.QA("confirm"),
		DialogCancel:    b.QA("cancel"),
		Tabs:            b.QA("tab"),
		ActionMenu:      b.QA("action-menu"),
		ActionMenuItems: b.QA("action-menu-item"),
		GlobalCreate:    b.QA("add-new-menu-button"),
		CreateMenuItems: b.QA("add-new-menu"),
		UserMenu:        b.QA("user-menu"),
		Logout:          b.QAValue("menu-link", "Log Out"),
		SelectOptions:   b.QA("option"),
		Breadcrumb:      b.QA("breadcrumb"),
	}
}

// Tab locates the tab labelled name.
func (p Base) Tab(name string) locator.Locator {
	return p.b.QAValue("tab", name)
}

// ActionMenuItem locates the open action menu entry labelled label.
func (p Base) ActionMenuItem(label string) locator.Locator {
	return p.b.QAValue("action-menu-item", label)
}

// CreateMenuItem locates an entry of the global create menu.
func (p Base) CreateMenuItem(label string) locator.Locator {
	return p.b.QAValue("add-new-menu", label)
}

// Option locates an entry of an open select list.
func (p Base) Option(value string) locator.Locator {
	return p.b.QAValue("option", value)
}

// ActionMenuIn locates the action menu trigger inside row.
func (p Base) ActionMenuIn(row locator.Locator) locator.Locator {
	return p.ActionMenu.Within(row)
}

// Input locates the input element wrapped by a data-qa text field.
func Input(field locator.Locator) locator.Locator {
	b := locator.On(field.Driver(), field.Page)
	return b.CSS(field.Name+"/input", "input, textarea").Within(field)
}
