package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// SessionsPageView lists tracked sessions and currently held operation
// locks.
type SessionsPageView struct {
	tuiApp    *TUIApp
	view      *tview.Flex
	table     *tview.Table
	locksBar  *tview.TextView
	statusBar *tview.TextView
}

// NewSessionsPageView creates the sessions page.
func NewSessionsPageView(tuiApp *TUIApp) *SessionsPageView {
	p := &SessionsPageView{
		tuiApp:    tuiApp,
		table:     tview.NewTable(),
		locksBar:  tview.NewTextView(),
		statusBar: tview.NewTextView(),
	}

	p.table.SetBorder(true).SetTitle(" Sessions ").SetTitleAlign(tview.AlignLeft)
	p.table.SetSelectable(true, false)
	p.table.SetBorderPadding(0, 0, 1, 1)
	p.table.SetFixed(1, 0)
	p.table.SetInputCapture(p.handleTableKeys)

	p.locksBar.SetBorder(true).SetTitle(" Held Locks ").SetTitleAlign(tview.AlignLeft)
	p.locksBar.SetDynamicColors(true)

	p.statusBar.SetBorder(true).SetTitle(" Controls ").SetTitleAlign(tview.AlignLeft)
	p.statusBar.SetText("[yellow]↑↓[white]: Navigate | [yellow]K[white]: Kill Session | [yellow]C[white]: Cleanup Exited | [yellow]Tab[white]: Logs | [yellow]Q[white]: Quit")
	p.statusBar.SetTextAlign(tview.AlignCenter)
	p.statusBar.SetDynamicColors(true)

	p.view = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.table, 0, 1, true).
		AddItem(p.locksBar, 4, 0, false).
		AddItem(p.statusBar, 3, 0, false)

	p.Refresh()
	return p
}

// GetView returns the page's root primitive.
func (p *SessionsPageView) GetView() tview.Primitive {
	return p.view
}

func (p *SessionsPageView) handleTableKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'k', 'K':
			p.killSelectedSession()
			return nil
		case 'c', 'C':
			sessions.CleanupCompleted()
			p.Refresh()
			return nil
		}
	}
	return event
}

func (p *SessionsPageView) killSelectedSession() {
	row, _ := p.table.GetSelection()
	if row <= 0 {
		return
	}
	idCell := p.table.GetCell(row, 0)
	if idCell == nil || idCell.Text == "" {
		return
	}
	sessionID := idCell.Text

	info, ok := sessions.TryGet(sessionID)
	if !ok || !info.Running {
		return
	}

	ShowKillConfirmation(p.tuiApp.app, p.tuiApp.pages,
		fmt.Sprintf("%s (%s %s)", sessionID, info.Kind, info.Target), func() {
			sessions.TryStop(sessionID)
			p.Refresh()
		})
}

// Refresh rebuilds the table and lock bar from the registries.
func (p *SessionsPageView) Refresh() {
	infos := sessions.ActiveSessions()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.After(infos[j].StartedAt)
	})

	p.table.Clear()
	headers := []string{"Session ID", "Kind", "Target", "PID", "Started", "Status"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		p.table.SetCell(0, col, cell)
	}

	for i, info := range infos {
		row := i + 1
		status := "exited"
		color := tcell.ColorGray
		if info.Running {
			status = "running"
			color = tcell.ColorGreen
		} else if info.ExitCode != nil && *info.ExitCode != 0 {
			status = fmt.Sprintf("exited (%d)", *info.ExitCode)
			color = tcell.ColorRed
		}

		p.table.SetCell(row, 0, tview.NewTableCell(info.ID))
		p.table.SetCell(row, 1, tview.NewTableCell(info.Kind))
		p.table.SetCell(row, 2, tview.NewTableCell(info.Target).SetExpansion(1))
		p.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", info.PID)))
		p.table.SetCell(row, 4, tview.NewTableCell(info.StartedAt.Format("15:04:05")))
		p.table.SetCell(row, 5, tview.NewTableCell(status).SetTextColor(color))
	}

	holders := locks.Holders()
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].AcquiredAt.Before(holders[j].AcquiredAt)
	})
	if len(holders) == 0 {
		p.locksBar.SetText("[gray]none")
	} else {
		text := ""
		for _, holder := range holders {
			text += fmt.Sprintf("[green]%s[white] %s (since %s)  ",
				holder.Kind, holder.Target, holder.AcquiredAt.Format(time.Kitchen))
		}
		p.locksBar.SetText(text)
	}
}
