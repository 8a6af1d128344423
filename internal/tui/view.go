package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/evanschultz/kantime/internal/board"
	"github.com/evanschultz/kantime/internal/domain"
)

// Layout constants shared by rendering and mouse hit-testing.
const (
	// boardTop is the screen row of the column top border: header, filter line.
	boardTop = 2
	// rowsTop is the first task row: border and column title sit above it.
	rowsTop = boardTop + 2
	// rowLines is the height of one task card.
	rowLines = 2
	// footerReserve covers notice, banner, status and the bordered help line.
	footerReserve = 5
	// colOverhead is border (2), horizontal padding (2) and margin-right (1).
	colOverhead = 5
)

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
	warnColor   = lipgloss.Color("203")
	timerColor  = lipgloss.Color("78")
)

// View renders the board and any open overlay.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeAllMotion
	v.AltScreen = true
	return v
}

// render builds the full screen as a string.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dimColor)

	header := titleStyle.Render("kantime") + "  " + m.project.Name
	header += statusStyle.Render("  [" + m.board.Mode().String() + "]")
	if n := len(m.board.SelectedIDs()); n > 0 {
		header += statusStyle.Render(fmt.Sprintf("  selected: %d", n))
	}
	if n := len(m.board.Timers().RunningIDs()); n > 0 {
		header += lipgloss.NewStyle().Foreground(timerColor).Render(fmt.Sprintf("  timers: %d", n))
	}
	if m.board.Updating() {
		header += lipgloss.NewStyle().Foreground(accentColor).Render("  saving...")
	}

	sections := []string{
		header,
		statusStyle.Render(m.filterSummary()),
		m.renderColumns(),
	}
	if notice, ok := m.board.Notice(); ok {
		sections = append(sections, lipgloss.NewStyle().Foreground(warnColor).Bold(true).Render(notice.Message+" • esc dismiss"))
	}
	if banner := m.restoredBanner(); banner != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(timerColor).Render(banner))
	}
	if m.mode == modeSearch {
		sections = append(sections, m.searchInput.View())
	} else if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	full := content + "\n" + helpLine

	overlay := m.renderModeOverlay(m.width - 8)
	if m.help.ShowAll {
		overlay = m.renderHelpOverlay(m.width - 8)
	}
	if overlay != "" {
		height := lipgloss.Height(full)
		if m.height > 0 {
			height = m.height
		}
		full = overlayOnContent(full, overlay, max(1, m.width), max(1, height))
	}
	return full
}

// filterSummary describes the active filter and sort.
func (m Model) filterSummary() string {
	f := m.board.Filter()
	parts := []string{}
	if q := strings.TrimSpace(f.Search); q != "" {
		parts = append(parts, "search: "+truncate(q, 24))
	}
	parts = append(parts,
		"priority: "+orAll(f.Priority),
		"status: "+orAll(f.Status),
		fmt.Sprintf("sort: %s %s", f.SortBy, f.SortOrder),
		fmt.Sprintf("%d/%d shown", len(m.board.Visible()), len(m.board.Tasks())),
	)
	return strings.Join(parts, " • ")
}

func orAll(v string) string {
	if strings.TrimSpace(v) == "" {
		return board.FilterAll
	}
	return v
}

// restoredBanner lists timers resumed from a previous session.
func (m Model) restoredBanner() string {
	restored := m.board.Timers().Restored()
	if len(restored) == 0 {
		return ""
	}
	titles := make([]string, 0, len(restored))
	for _, timer := range restored {
		title := timer.TaskTitle
		if task, ok := m.board.Task(timer.TaskID); ok {
			title = task.Title
		}
		titles = append(titles, truncate(title, 24))
	}
	return fmt.Sprintf("resumed %d timer(s): %s • esc dismiss", len(restored), strings.Join(titles, ", "))
}

// columnStyle is the bordered box around one status column.
func (m Model) columnStyle(active bool) lipgloss.Style {
	border := dimColor
	if active {
		border = accentColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		MarginRight(1).
		Width(m.columnWidth())
}

// columnWidth splits the terminal across the three columns.
func (m Model) columnWidth() int {
	w := 28
	if m.width > 0 {
		usable := m.width - len(domain.Statuses)*colOverhead
		if candidate := usable / len(domain.Statuses); candidate > 0 {
			w = candidate
		}
	}
	return clamp(w, 24, 44)
}

// columnOuterWidth is the rendered width of one column including its margin.
func (m Model) columnOuterWidth() int {
	return lipgloss.Width(m.columnStyle(false).Render(""))
}

// rowsWindow is how many task cards fit in one column.
func (m Model) rowsWindow() int {
	inner := 14
	if m.height > 0 {
		inner = m.height - boardTop - 2 - footerReserve
	}
	return max(1, (inner-1)/rowLines)
}

// columnOffset scrolls a column so its focused or pointed-at row stays visible.
func (m Model) columnOffset(col int, rows []board.Row, window int) int {
	target := -1
	for i, row := range rows {
		if row.Focused {
			target = i
			break
		}
	}
	if target < 0 && m.board.Mode() != board.ModeKeyboard && col == m.pointer.col {
		target = m.pointer.row
	}
	if target < window {
		return 0
	}
	return clamp(target-window+1, 0, max(len(rows)-window, 0))
}

// hitTest maps a screen cell onto a column and row index.
func (m Model) hitTest(x, y int) (board.Location, int, bool) {
	outer := m.columnOuterWidth()
	if outer <= 0 || x < 0 || y < rowsTop {
		return board.Location{}, 0, false
	}
	col := x / outer
	if col >= len(domain.Statuses) {
		return board.Location{}, 0, false
	}
	window := m.rowsWindow()
	rel := (y - rowsTop) / rowLines
	if rel >= window {
		return board.Location{}, 0, false
	}
	rows := m.board.Columns()[col].Rows
	idx := rel + m.columnOffset(col, rows, window)
	return board.Location{Column: domain.Statuses[col], Index: idx}, col, true
}

// renderColumns draws the three status columns side by side.
func (m Model) renderColumns() string {
	colWidth := m.columnWidth()
	window := m.rowsWindow()
	textWidth := max(1, colWidth-6)

	colTitle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	subStyle := lipgloss.NewStyle().Foreground(mutedColor)
	disabledStyle := lipgloss.NewStyle().Foreground(dimColor).Faint(true)
	focusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	pointerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Underline(true)
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("237")).Bold(true)
	runningStyle := lipgloss.NewStyle().Foreground(timerColor)

	selecting := m.board.Mode() == board.ModeSelecting
	views := make([]string, 0, len(domain.Statuses))
	for colIdx, column := range m.board.Columns() {
		lines := []string{colTitle.Render(fmt.Sprintf("%s (%d)", column.Status.Label(), column.Len()))}
		if column.Len() == 0 {
			lines = append(lines, emptyStyle.Render("(empty)"))
		}
		offset := m.columnOffset(colIdx, column.Rows, window)
		end := min(len(column.Rows), offset+window)
		for i := offset; i < end; i++ {
			row := column.Rows[i]
			pointed := selecting && colIdx == m.pointer.col && i == m.pointer.row

			prefix := "  "
			switch {
			case row.SelectionMode && row.Selected:
				prefix = "☑ "
			case row.SelectionMode:
				prefix = "☐ "
			case row.Focused:
				prefix = "│ "
			}
			title := prefix + truncate(row.Task.Title, textWidth)
			meta := "  " + truncate(cardMeta(row), textWidth)

			switch {
			case row.Disabled:
				title = disabledStyle.Render(title)
				meta = disabledStyle.Render(meta)
			case pointed:
				title = pointerStyle.Render(title)
				meta = subStyle.Render(meta)
			case row.Focused:
				title = focusStyle.Render(title)
				meta = subStyle.Render(meta)
			case row.Selected:
				title = selectedStyle.Render(title)
				meta = subStyle.Render(meta)
			case row.TimerRunning:
				meta = runningStyle.Render(meta)
			default:
				meta = subStyle.Render(meta)
			}
			lines = append(lines, title, meta)
		}
		content := fitLines(strings.Join(lines, "\n"), 1+window*rowLines)
		active := (m.board.Mode() == board.ModeKeyboard && column.Status == m.board.Focus().Column) ||
			(selecting && colIdx == m.pointer.col)
		views = append(views, m.columnStyle(active).Render(content))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// cardMeta is the second line of a task card.
func cardMeta(row board.Row) string {
	parts := []string{string(row.Task.Priority), formatMinutes(row.Task.TimeSpentMinutes)}
	if row.Task.EstimatedHours != nil {
		parts[1] += " / " + formatHours(*row.Task.EstimatedHours)
	}
	if row.TimerRunning {
		parts = append(parts, "⏱ "+formatElapsed(row.Elapsed))
	}
	return strings.Join(parts, " · ")
}

// renderModeOverlay renders the modal layer, if any.
func (m Model) renderModeOverlay(maxWidth int) string {
	width := clamp(maxWidth, 40, 84)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	hintStyle := lipgloss.NewStyle().Foreground(mutedColor)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Width(width)

	switch m.mode {
	case modeAddTask:
		lines := []string{titleStyle.Render("New task in " + m.formStatus.Label()), ""}
		for _, in := range m.formInputs {
			lines = append(lines, in.View())
		}
		if m.formErr != "" {
			lines = append(lines, "", lipgloss.NewStyle().Foreground(warnColor).Render(m.formErr))
		}
		lines = append(lines, "", hintStyle.Render("tab next field • enter create • esc cancel"))
		return box.Render(strings.Join(lines, "\n"))

	case modeTaskInfo:
		task, ok := m.board.Task(m.taskInfoID)
		if !ok {
			return ""
		}
		return box.Render(m.renderTaskInfo(task, width-4, titleStyle, hintStyle))

	case modeActivityLog:
		return box.Render(m.renderActivity(width-4, titleStyle, hintStyle))

	case modeConfirmQuit, modeConfirmDelete:
		return box.BorderForeground(warnColor).Render(m.status + "\n\n" + hintStyle.Render("y confirm • any other key cancels"))
	}
	return ""
}

// renderTaskInfo renders the task detail body.
func (m Model) renderTaskInfo(task domain.Task, width int, titleStyle, hintStyle lipgloss.Style) string {
	lines := []string{
		titleStyle.Render(task.Title),
		hintStyle.Render(fmt.Sprintf("%s • %s", task.Status.Label(), task.Priority)),
		"",
		"time spent: " + formatMinutes(task.TimeSpentMinutes),
	}
	if task.EstimatedHours != nil {
		lines = append(lines, "estimate:   "+formatHours(*task.EstimatedHours))
	}
	if m.board.Timers().Running(task.ID) {
		lines = append(lines, "timer:      running "+formatElapsed(m.board.Timers().Elapsed(task.ID)))
	}
	lines = append(lines, "created:    "+formatTimestamp(task.CreatedAt), "updated:    "+formatTimestamp(task.UpdatedAt))
	if task.StartedAt != nil {
		lines = append(lines, "started:    "+formatTimestamp(*task.StartedAt))
	}
	if task.CompletedAt != nil {
		lines = append(lines, "completed:  "+formatTimestamp(*task.CompletedAt))
	}
	if desc := m.markdown.render(task.Description, width); desc != "" {
		lines = append(lines, "", desc)
	}
	lines = append(lines, "", hintStyle.Render("y copy title • esc close"))
	return strings.Join(lines, "\n")
}

// renderActivity renders recent change events, newest first.
func (m Model) renderActivity(width int, titleStyle, hintStyle lipgloss.Style) string {
	lines := []string{titleStyle.Render("Activity"), ""}
	if m.activity == nil {
		lines = append(lines, hintStyle.Render("loading..."))
	} else if len(m.activity) == 0 {
		lines = append(lines, hintStyle.Render("no activity yet"))
	}
	for _, ev := range m.activity {
		line := fmt.Sprintf("%s  %-6s %-6s %s", formatTimestamp(ev.OccurredAt), ev.Operation, ev.ActorType, m.eventSubject(ev))
		if detail := eventDetail(ev); detail != "" {
			line += "  " + hintStyle.Render(detail)
		}
		lines = append(lines, truncate(line, width*3))
	}
	lines = append(lines, "", hintStyle.Render("esc close"))
	return fitLines(strings.Join(lines, "\n"), max(6, m.height-6))
}

// eventSubject names the task an event refers to.
func (m Model) eventSubject(ev domain.ChangeEvent) string {
	if task, ok := m.board.Task(ev.TaskID); ok {
		return truncate(task.Title, 32)
	}
	if title := ev.Metadata["title"]; title != "" {
		return truncate(title, 32)
	}
	return ev.TaskID
}

// eventDetail summarizes event metadata.
func eventDetail(ev domain.ChangeEvent) string {
	md := ev.Metadata
	switch ev.Operation {
	case domain.ChangeOperationMove:
		return md["from_status"] + " → " + md["to_status"]
	case domain.ChangeOperationTime:
		if md["reset"] == "true" {
			return "reset"
		}
		return "+" + md["minutes"] + "m"
	case domain.ChangeOperationUpdate:
		return md["changed_fields"]
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		if k != "title" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+md[k])
	}
	return strings.Join(parts, " ")
}

// renderHelpOverlay renders the full key reference.
func (m Model) renderHelpOverlay(maxWidth int) string {
	width := clamp(maxWidth, 56, 100)
	hb := m.help
	hb.ShowAll = true
	hb.SetWidth(width - 4)

	title := lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("kantime help")
	workflow := []string{
		"1. arrows/tab focus a task • enter details • 1/2/3 move it",
		"2. moving into In Progress starts a timer; leaving it reports the time",
		"3. v selection mode • space toggle • a all • 1/2/3 move • p priority • x delete",
		"4. drag a card with the mouse to move or reorder it",
		"5. / search • f priority • s status • o/O sort • c clear",
	}
	lines := []string{
		title,
		"",
		hb.View(m.keys),
		"",
		lipgloss.NewStyle().Foreground(mutedColor).Render(strings.Join(workflow, "\n")),
		lipgloss.NewStyle().Foreground(mutedColor).Render("press ? or esc to close"),
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(lines, "\n"))
}

// formatMinutes renders whole minutes as "45m" or "2h 05m".
func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", max(minutes, 0))
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

// formatHours renders an estimate.
func formatHours(hours float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", hours), "0"), ".") + "h"
}

// formatElapsed renders a running timer as mm:ss or h:mm:ss.
func formatElapsed(d time.Duration) string {
	d = max(d, 0).Truncate(time.Second)
	h := int(d / time.Hour)
	mins := int(d/time.Minute) % 60
	secs := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// formatTimestamp formats times compactly in local time.
func formatTimestamp(at time.Time) string {
	if at.IsZero() {
		return "--"
	}
	local := at.Local()
	now := time.Now().In(local.Location())
	if local.Year() != now.Year() || local.YearDay() != now.YearDay() {
		return local.Format("01-02 15:04")
	}
	return local.Format("15:04:05")
}

// clamp bounds v to [minV, maxV].
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or cuts content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay on top of base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}
	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centered := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centered).X(0).Y(0).Z(10)
	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate cuts s to n runes with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	if n <= 1 {
		return string(rs[:n])
	}
	return string(rs[:n-1]) + "…"
}
