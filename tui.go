package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PageType represents the pages in the TUI
type PageType int

const (
	SessionsPage PageType = iota
	LogsPage
)

// TUIApp is the terminal monitor: a sessions/locks table and a server log
// page. It is a read-mostly view over the registries; the only mutation it
// performs is killing a session after confirmation.
type TUIApp struct {
	app          *tview.Application
	pages        *tview.Pages
	sessionsPage *SessionsPageView
	logsPage     *LogsPageView
	currentPage  PageType
	ctx          context.Context
	cancel       context.CancelFunc
	signalChan   chan os.Signal
	stopOnce     sync.Once
}

// NewTUIApp creates the TUI with its pages wired to the global registries.
func NewTUIApp() *TUIApp {
	ctx, cancel := context.WithCancel(context.Background())

	t := &TUIApp{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		currentPage: SessionsPage,
		ctx:         ctx,
		cancel:      cancel,
		signalChan:  make(chan os.Signal, 1),
	}

	signal.Notify(t.signalChan, os.Interrupt, syscall.SIGTERM)
	go t.handleSignals()

	t.app.EnableMouse(true)

	t.sessionsPage = NewSessionsPageView(t)
	t.logsPage = NewLogsPageView(t)

	t.pages.AddPage("sessions", t.sessionsPage.GetView(), true, true)
	t.pages.AddPage("logs", t.logsPage.GetView(), true, false)

	t.app.SetRoot(t.pages, true)
	t.app.SetInputCapture(t.handleGlobalKeys)

	go t.updateRoutine()

	return t
}

func (t *TUIApp) handleSignals() {
	select {
	case <-t.signalChan:
		setTUIActive(false)
		t.Stop()
	case <-t.ctx.Done():
	}
}

func (t *TUIApp) handleGlobalKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyTab, tcell.KeyBacktab:
		t.switchPage()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case '1':
			t.SwitchToPage(SessionsPage)
			return nil
		case '2':
			t.SwitchToPage(LogsPage)
			return nil
		case 'q', 'Q':
			setTUIActive(false)
			t.Stop()
			return nil
		}
	case tcell.KeyEsc:
		if t.currentPage != SessionsPage {
			t.SwitchToPage(SessionsPage)
			return nil
		}
	}
	return event
}

func (t *TUIApp) switchPage() {
	if t.currentPage == SessionsPage {
		t.SwitchToPage(LogsPage)
	} else {
		t.SwitchToPage(SessionsPage)
	}
}

// SwitchToPage switches to the specified page and refreshes it.
func (t *TUIApp) SwitchToPage(page PageType) {
	t.currentPage = page
	switch page {
	case SessionsPage:
		t.pages.SwitchToPage("sessions")
		t.sessionsPage.Refresh()
	case LogsPage:
		t.pages.SwitchToPage("logs")
		t.logsPage.Refresh()
	}
	t.app.SetFocus(t.pages)
}

// updateRoutine refreshes the visible page once a second. Updates from
// goroutines must go through QueueUpdateDraw.
func (t *TUIApp) updateRoutine() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.app.QueueUpdateDraw(func() {
				switch t.currentPage {
				case SessionsPage:
					t.sessionsPage.Refresh()
				case LogsPage:
					t.logsPage.Refresh()
				}
			})
		case <-t.ctx.Done():
			return
		}
	}
}

// Run starts the TUI event loop; it blocks until Stop.
func (t *TUIApp) Run() error {
	return t.app.Run()
}

// Stop shuts the TUI down. Safe to call more than once.
func (t *TUIApp) Stop() {
	t.stopOnce.Do(func() {
		signal.Stop(t.signalChan)
		t.cancel()
		t.app.Stop()
	})
}
