// Package renderers holds the built-in view-object renderers.
package renderers

import "github.com/GoCodeAlone/pageview/builder"

// Tags of the built-in renderers.
const (
	TagVBox           = "VBox"
	TagHBox           = "HBox"
	TagText           = "Text"
	TagTab            = "Tab"
	TagTabLayout      = "TabLayout"
	TagSplitContainer = "SplitContainer"
	TagTableView      = "TableView"
	TagForm           = "Form"
	TagDashboardView  = "DashboardView"
	TagTree           = "Tree"
	TagChart          = "Chart"
	TagActionBar      = "ActionBar"
	TagFilterBar      = "FilterBar"
	TagDrawer         = "Drawer"
	TagDialog         = "Dialog"
)

// NewRegistry returns a registry with every built-in renderer bound to its tag.
func NewRegistry() *builder.Registry {
	r := builder.NewRegistry()
	Register(r)
	return r
}

// Register binds the built-in renderers on an existing registry.
func Register(r *builder.Registry) {
	r.RegisterFunc(TagVBox, VBox)
	r.RegisterFunc(TagHBox, HBox)
	r.RegisterFunc(TagText, Text)
	r.RegisterFunc(TagTab, Tab)
	r.RegisterFunc(TagTabLayout, TabLayout)
	r.RegisterFunc(TagSplitContainer, SplitContainer)
	r.RegisterFunc(TagTableView, TableView)
	r.RegisterFunc(TagForm, Form)
	r.RegisterFunc(TagDashboardView, DashboardView)
	r.RegisterFunc(TagTree, Tree)
	r.RegisterFunc(TagChart, Chart)
	r.RegisterFunc(TagActionBar, ActionBar)
	r.RegisterFunc(TagFilterBar, FilterBar)
	r.RegisterFunc(TagDrawer, Drawer)
	r.RegisterFunc(TagDialog, Dialog)
}
