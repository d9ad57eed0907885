package views

import (
	"fmt"
	"strings"
)

type TimerItemData struct {
	ID           string
	Name         string
	Type         string
	Status       string
	Clock        string
	Phase        string
	ProgressView string
	ProgressPct  int
}

type TimersPanelData struct {
	Items      []TimerItemData
	SelectedID string
}

type AutomationItemData struct {
	ID      string
	Name    string
	Trigger string
	Action  string
	State   string
	LastRun string
}

type AutomationsPanelData struct {
	Items      []AutomationItemData
	SelectedID string
}

type FiringItemData struct {
	At        string
	Name      string
	Action    string
	Delivered bool
	Detail    string
}

type TranscriptLine struct {
	Sender     string
	At         string
	Text       string
	Attachment string
	Voice      bool
	Failed     bool
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
}

func RenderTimersPanel(data TimersPanelData) string {
	var b strings.Builder
	b.WriteString("timers:\n")
	b.WriteString("actions: [j/k]move [space]start/pause [r]reset [x]cancel\n")
	if len(data.Items) == 0 {
		b.WriteString("  (none)")
		return b.String()
	}
	for _, item := range data.Items {
		cursor := " "
		if data.SelectedID == item.ID {
			cursor = ">"
		}
		name := item.Name
		if name == "" {
			name = shortID(item.ID)
		}
		b.WriteString(fmt.Sprintf("%s %s %s %s %s\n", cursor, statusBadge(item.Status), typeLetter(item.Type), name, accentStyle.Render(item.Clock)))
		if item.Phase != "" {
			b.WriteString(fmt.Sprintf("    phase: %s\n", item.Phase))
		}
		if item.ProgressView != "" {
			b.WriteString(fmt.Sprintf("    %s %d%%\n", item.ProgressView, item.ProgressPct))
		}
	}
	return strings.TrimSpace(b.String())
}

func RenderAutomationsPanel(data AutomationsPanelData) string {
	var b strings.Builder
	b.WriteString("automations:\n")
	b.WriteString("actions: [tab]switch [t]toggle [p]pause 1h [u]resume\n")
	if len(data.Items) == 0 {
		b.WriteString("  (none)")
		return b.String()
	}
	for _, item := range data.Items {
		cursor := " "
		if data.SelectedID == item.ID {
			cursor = ">"
		}
		b.WriteString(fmt.Sprintf("%s [%s] %s\n", cursor, strings.ToUpper(item.State), item.Name))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("    %s -> %s", item.Trigger, item.Action)))
		if item.LastRun != "" {
			b.WriteString(mutedStyle.Render(" last: " + item.LastRun))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func RenderFiringsPanel(items []FiringItemData) string {
	var b strings.Builder
	b.WriteString("recent firings:\n")
	if len(items) == 0 {
		b.WriteString("  (none yet)")
		return b.String()
	}
	for _, f := range items {
		mark := "ok"
		if !f.Delivered {
			mark = "failed"
		}
		b.WriteString(fmt.Sprintf("%s %-20s %-11s %s", f.At, f.Name, f.Action, mark))
		if f.Detail != "" {
			b.WriteString(": " + f.Detail)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// TranscriptMarkdown lays a conversation out as markdown, one block per
// message.
func TranscriptMarkdown(title string, lines []TranscriptLine) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	if len(lines) == 0 {
		b.WriteString("_no messages_\n")
		return b.String()
	}
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("**%s** · %s\n\n", l.Sender, l.At))
		switch {
		case l.Failed:
			b.WriteString("> " + l.Text + "\n\n")
		case l.Voice:
			b.WriteString("🎙 " + l.Text + "\n\n")
		case l.Text != "":
			b.WriteString(l.Text + "\n\n")
		}
		if l.Attachment != "" {
			b.WriteString("📎 `" + l.Attachment + "`\n\n")
		}
	}
	return b.String()
}

func RenderTranscript(title string, lines []TranscriptLine) string {
	return RenderMarkdown(TranscriptMarkdown(title, lines))
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: /%s", input)
}

func RenderNotification(level string, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return fmt.Sprintf("notification: [%s] %s", strings.ToUpper(level), body)
}

func RenderHelpPanel(data HelpPanelData) string {
	return fmt.Sprintf("help:\n%s\n%s",
		strings.Join(data.Bindings, "\n"),
		data.HelpView,
	)
}

func statusBadge(status string) string {
	switch status {
	case "running":
		return "[RUN]"
	case "paused":
		return "[PAUSE]"
	case "completed":
		return "[DONE]"
	default:
		return "[IDLE]"
	}
}

func typeLetter(typ string) string {
	if typ == "" {
		return "?"
	}
	return strings.ToUpper(typ[:1])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
