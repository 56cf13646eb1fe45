package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// LogsPageView renders the gateway's own server log (the in-memory Logger),
// not captured process output.
type LogsPageView struct {
	tuiApp    *TUIApp
	view      *tview.Flex
	text      *tview.TextView
	statusBar *tview.TextView
}

// NewLogsPageView creates the server log page.
func NewLogsPageView(tuiApp *TUIApp) *LogsPageView {
	p := &LogsPageView{
		tuiApp:    tuiApp,
		text:      tview.NewTextView(),
		statusBar: tview.NewTextView(),
	}

	p.text.SetBorder(true).SetTitle(" Server Log ").SetTitleAlign(tview.AlignLeft)
	p.text.SetDynamicColors(true)
	p.text.SetScrollable(true)
	p.text.SetInputCapture(p.handleKeys)

	p.statusBar.SetBorder(true).SetTitle(" Controls ").SetTitleAlign(tview.AlignLeft)
	p.statusBar.SetText("[yellow]↑↓[white]: Scroll | [yellow]C[white]: Clear | [yellow]Tab[white]: Sessions | [yellow]Q[white]: Quit")
	p.statusBar.SetTextAlign(tview.AlignCenter)
	p.statusBar.SetDynamicColors(true)

	p.view = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.text, 0, 1, true).
		AddItem(p.statusBar, 3, 0, false)

	p.Refresh()
	return p
}

// GetView returns the page's root primitive.
func (p *LogsPageView) GetView() tview.Primitive {
	return p.view
}

func (p *LogsPageView) handleKeys(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyRune {
		switch event.Rune() {
		case 'c', 'C':
			logger.Clear()
			p.Refresh()
			return nil
		}
	}
	return event
}

// Refresh re-renders the most recent log entries.
func (p *LogsPageView) Refresh() {
	entries := logger.GetRecentEntries(200)

	text := ""
	for _, entry := range entries {
		color := "white"
		switch entry.Level {
		case LogLevelWarn:
			color = "yellow"
		case LogLevelError:
			color = "red"
		}
		line := fmt.Sprintf("[gray]%s [%s]%-5s[white] [%s] %s",
			entry.Timestamp.Format("15:04:05"), color, entry.Level, entry.Source, entry.Message)
		if entry.Details != "" {
			line += fmt.Sprintf(" [gray]- %s", entry.Details)
		}
		text += line + "\n"
	}
	p.text.SetText(text)
	p.text.ScrollToEnd()
}
