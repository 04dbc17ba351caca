// Package tui renders a signed-in user's notification feed in the terminal.
// The model drives a notifications.Store, so the read, clear and realtime
// behaviour matches the web widgets exactly.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/notifications"
)

const (
	defaultTimeout = 10 * time.Second
	alertTick      = 250 * time.Millisecond
)

// MountedMsg reports the outcome of the initial load and subscribe.
type MountedMsg struct {
	Err error
}

// ChangedMsg is sent whenever the store signals a change.
type ChangedMsg struct{}

// ActionMsg reports the outcome of a user action.
type ActionMsg struct {
	Op  string
	Err error
}

type alertTickMsg time.Time

// Config wires a Model.
type Config struct {
	Store      *notifications.Store
	Subscriber *notifications.Subscriber
	// Principal is the signed-in user, already admitted by the guard.
	Principal identity.Principal
	// BaseURL prefixes navigation targets shown on open.
	BaseURL string
	Keys    *KeyMap
	Timeout time.Duration
	Now     func() time.Time
}

// Model is the notification center view.
type Model struct {
	store      *notifications.Store
	subscriber *notifications.Subscriber
	center     notifications.Center
	principal  identity.Principal
	baseURL    string
	keys       *KeyMap
	timeout    time.Duration
	now        func() time.Time

	spinner spinner.Model
	help    help.Model

	loading      bool
	cursor       int
	confirmClear bool
	status       string
	statusErr    bool
	quitting     bool

	width  int
	height int
}

// New returns a Model for cfg.
func New(cfg Config) Model {
	if cfg.Keys == nil {
		cfg.Keys = DefaultKeyMap()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorBlue)

	return Model{
		store:      cfg.Store,
		subscriber: cfg.Subscriber,
		center:     notifications.Center{Store: cfg.Store, Role: cfg.Principal.Role},
		principal:  cfg.Principal,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keys:       cfg.Keys,
		timeout:    cfg.Timeout,
		now:        cfg.Now,
		spinner:    sp,
		help:       help.New(),
		loading:    true,
	}
}

// Init mounts the store and starts listening for changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.mount(), m.waitForChange())
}

func (m Model) mount() tea.Cmd {
	store, subscriber, userID := m.store, m.subscriber, m.principal.UserID()
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return MountedMsg{Err: store.Mount(ctx, subscriber, userID)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	changes := m.store.Changes()
	return func() tea.Msg {
		<-changes
		return ChangedMsg{}
	}
}

func (m Model) alertTick() tea.Cmd {
	return tea.Tick(alertTick, func(t time.Time) tea.Msg { return alertTickMsg(t) })
}

// Update handles messages for the view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case MountedMsg:
		m.loading = false
		var subErr *notifications.SubscriptionError
		if errors.As(msg.Err, &subErr) {
			m.setStatus("Live updates unavailable: "+subErr.Err.Error(), true)
		}
		m.clampCursor()
		return m, nil

	case ChangedMsg:
		m.clampCursor()
		cmds := []tea.Cmd{m.waitForChange()}
		if _, ok := m.store.Alert(m.now()); ok {
			cmds = append(cmds, m.alertTick())
		}
		return m, tea.Batch(cmds...)

	case alertTickMsg:
		if _, ok := m.store.Alert(m.now()); ok {
			return m, m.alertTick()
		}
		return m, nil

	case ActionMsg:
		if msg.Err != nil {
			m.setStatus(actionFailure(msg.Op, msg.Err), true)
		}
		m.clampCursor()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	confirming := m.confirmClear
	m.confirmClear = false
	if confirming && !key.Matches(msg, m.keys.Clear) {
		m.setStatus("", false)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.store.Unmount()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.store.Visible())-1 {
			m.cursor++
		}
		return m, nil
	}

	if m.loading {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Open):
		n, ok := m.selected()
		if !ok {
			return m, nil
		}
		if target, ok := m.center.Click(n); ok {
			m.setStatus("Open "+m.baseURL+target, false)
		} else {
			m.setStatus("Nothing to open for this notification", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleRead):
		n, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.setStatus("", false)
		return m, m.action("toggle_read", func(ctx context.Context) error {
			return m.store.ToggleRead(ctx, n.ID)
		})

	case key.Matches(msg, m.keys.MarkAll):
		m.setStatus("", false)
		return m, m.action("mark_all_read", m.store.MarkAllRead)

	case key.Matches(msg, m.keys.Delete):
		n, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.setStatus("", false)
		return m, m.action("remove", func(ctx context.Context) error {
			return m.store.Remove(ctx, n.ID)
		})

	case key.Matches(msg, m.keys.Clear):
		if !confirming {
			m.confirmClear = true
			m.setStatus("Press C again to delete every notification", false)
			return m, nil
		}
		m.setStatus("", false)
		return m, m.action("clear_all", m.store.ClearAll)

	case key.Matches(msg, m.keys.Reload):
		m.setStatus("", false)
		userID := m.principal.UserID()
		return m, m.action("reload", func(ctx context.Context) error {
			return m.store.Load(ctx, userID, m.store.Cap())
		})
	}
	return m, nil
}

func (m Model) action(op string, fn func(context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ActionMsg{Op: op, Err: fn(ctx)}
	}
}

func (m Model) selected() (notifications.Notification, bool) {
	visible := m.store.Visible()
	if m.cursor < 0 || m.cursor >= len(visible) {
		return notifications.Notification{}, false
	}
	return visible[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.store.Visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func actionFailure(op string, err error) string {
	label := strings.ReplaceAll(op, "_", " ")
	var mutErr *notifications.MutationError
	if errors.As(err, &mutErr) && mutErr.Reverted {
		return fmt.Sprintf("Could not %s, changes were reverted: %v", label, mutErr.Err)
	}
	return fmt.Sprintf("Could not %s: %v", label, err)
}

// View renders the center.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	if alert, ok := m.store.Alert(m.now()); ok {
		b.WriteString(alertStyle.Render(alert))
		b.WriteString("\n\n")
	}

	b.WriteString(m.body())

	if m.status != "" {
		b.WriteString("\n")
		if m.statusErr {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(statusStyle.Render(m.status))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) header() string {
	title := headerStyle.Render("Notifications")
	who := m.principal.Role.String()
	if m.principal.Session != nil && m.principal.Session.Email != "" {
		who = m.principal.Session.Email + " · " + who
	}
	parts := []string{title}
	if unread := m.store.UnreadCount(); unread > 0 {
		parts = append(parts, unreadCountStyle.Render(fmt.Sprintf("%d unread", unread)))
	}
	parts = append(parts, statusStyle.Render(who))
	return lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(parts, " "))
}

func (m Model) body() string {
	if m.loading {
		return itemStyle.Render(m.spinner.View()+" Loading notifications...") + "\n"
	}
	if m.store.Err() != nil {
		return errorStyle.PaddingLeft(2).Render(notifications.FetchFailedText) + "\n"
	}

	visible := m.store.Visible()
	if len(visible) == 0 {
		return emptyStyle.Render(notifications.EmptyText) + "\n"
	}

	now := m.now()
	var b strings.Builder
	for i, n := range visible {
		b.WriteString(m.renderItem(n, i == m.cursor, now))
		b.WriteString("\n")
	}
	if total := len(m.store.Snapshot()); total > len(visible) {
		b.WriteString(statusStyle.PaddingLeft(2).Render(fmt.Sprintf("%d more not shown", total-len(visible))))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderItem(n notifications.Notification, selected bool, now time.Time) string {
	label := string(n.Type)
	if label == "" {
		label = string(notifications.KindInfo)
	}
	badge := badgeStyle(n.Type.BadgeVariant()).Render(strings.ToUpper(label))

	titleStyle := readTitleStyle
	marker := " "
	if !n.Read {
		titleStyle = unreadTitleStyle
		marker = "•"
	}

	line := fmt.Sprintf("%s %s %s  %s", marker, badge, titleStyle.Render(n.Title), statusStyle.Render(age(now, n.CreatedAt)))
	if msg := strings.TrimSpace(n.Message); msg != "" {
		line += "\n    " + messageStyle.Render(msg)
	}

	if selected {
		return selectedStyle.Render(line)
	}
	return itemStyle.Render(line)
}
