package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the board bindings. Navigation keys (arrows, tab, enter,
// space, esc, 1/2/3) are routed to the board navigator and listed for help only.
type keyMap struct {
	quit          key.Binding
	reload        key.Binding
	toggleHelp    key.Binding
	navigate      key.Binding
	nextColumn    key.Binding
	openTask      key.Binding
	moveTask      key.Binding
	leave         key.Binding
	selectionMode key.Binding
	toggleRow     key.Binding
	selectAll     key.Binding
	bulkPriority  key.Binding
	bulkDelete    key.Binding
	addTask       key.Binding
	search        key.Binding
	sortKey       key.Binding
	sortOrder     key.Binding
	priority      key.Binding
	status        key.Binding
	clearFilter   key.Binding
	copyTitle     key.Binding
	activityLog   key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		navigate:      key.NewBinding(key.WithKeys("up", "down", "left", "right"), key.WithHelp("←↑↓→", "navigate")),
		nextColumn:    key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab/S-tab", "column")),
		openTask:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "task info")),
		moveTask:      key.NewBinding(key.WithKeys("1", "2", "3"), key.WithHelp("1/2/3", "move to todo/doing/done")),
		leave:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "leave mode / dismiss")),
		selectionMode: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "selection mode")),
		toggleRow:     key.NewBinding(key.WithKeys("space"), key.WithHelp("space", "toggle row")),
		selectAll:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
		bulkPriority:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "cycle priority")),
		bulkDelete:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete selected")),
		addTask:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		search:        key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		sortKey:       key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "sort by")),
		sortOrder:     key.NewBinding(key.WithKeys("O", "shift+o"), key.WithHelp("O", "flip order")),
		priority:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "priority filter")),
		status:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "status filter")),
		clearFilter:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear filters")),
		copyTitle:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy title")),
		activityLog:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "activity")),
	}
}

// ShortHelp returns the footer bindings.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.navigate, k.moveTask, k.selectionMode, k.addTask, k.search, k.sortKey, k.toggleHelp, k.quit,
	}
}

// FullHelp returns the help overlay columns.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.navigate, k.nextColumn, k.openTask, k.moveTask, k.leave, k.copyTitle},
		{k.selectionMode, k.toggleRow, k.selectAll, k.moveTask, k.bulkPriority, k.bulkDelete},
		{k.addTask, k.search, k.sortKey, k.sortOrder, k.priority, k.status, k.clearFilter},
		{k.activityLog, k.reload, k.toggleHelp, k.quit},
	}
}
