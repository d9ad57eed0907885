package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/companiond/internal/companion"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/storage"
)

type Pane string

const (
	PaneTimers      Pane = "timers"
	PaneAutomations Pane = "automations"
)

const (
	maxNotifications = 40
	recentFirings    = 8
	defaultPause     = time.Hour
)

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	SwitchPane string
	Help       string
	Quit       string
}

type Notification struct {
	Title string
	Body  string
	Level string
	At    time.Time
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

// Model is the bubbletea model behind `companiond watch`. Its tick drives
// the companion service, so nothing else may tick the same service while
// the dashboard runs.
type Model struct {
	svc           *companion.Service
	ctx           context.Context
	events        <-chan events.Event
	unsubscribe   func()
	interval      time.Duration
	now           func() time.Time
	lastTick      time.Time
	Pane          Pane
	TimerCursor   int
	RuleCursor    int
	Palette       CommandPaletteState
	HelpVisible   bool
	Notifications []Notification
	Firings       []storage.FiringRecord
	Status        StatusBar
	Keys          GlobalKeyMap
	Quitting      bool
	LastError     error
	width         int
	commandInput  textinput.Model
	timerProgress progress.Model
	helpModel     help.Model
}

type Option func(*Model)

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

func WithContext(ctx context.Context) Option {
	return func(m *Model) {
		if ctx != nil {
			m.ctx = ctx
		}
	}
}

func NewModel(svc *companion.Service, interval time.Duration, opts ...Option) Model {
	if interval <= 0 {
		interval = time.Second
	}
	m := Model{
		svc:      svc,
		ctx:      context.Background(),
		interval: interval,
		now:      time.Now,
		Pane:     PaneTimers,
		Keys: GlobalKeyMap{
			SwitchPane: "tab",
			Help:       "?",
			Quit:       "q",
		},
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.lastTick = m.now()
	m.events, m.unsubscribe = svc.Bus().Subscribe()
	m.initBubbleComponents()
	m.refreshFirings()
	return m
}

func (m *Model) initBubbleComponents() {
	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 48

	m.timerProgress = progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage())
	m.helpModel = help.New()
}

// Close releases the event subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

type TickMsg struct {
	At time.Time
}

type EventMsg struct {
	Event events.Event
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type AppErrorMsg struct {
	Err error
}
