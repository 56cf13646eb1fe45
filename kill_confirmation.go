package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ShowKillConfirmation displays a confirmation dialog before force-killing
// a session's process tree.
func ShowKillConfirmation(app *tview.Application, pages *tview.Pages, sessionName string, onConfirm func()) {
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Kill this session's entire process tree?\n\n%s\n\nThis action cannot be undone.", sessionName)).
		AddButtons([]string{"Kill", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			pages.RemovePage("kill-confirmation")
			if buttonIndex == 0 {
				onConfirm()
			}
		})

	modal.SetBorder(true).
		SetBorderColor(tcell.ColorRed).
		SetBackgroundColor(tcell.ColorBlack)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'k', 'K':
				pages.RemovePage("kill-confirmation")
				onConfirm()
				return nil
			case 'c', 'C', 'n', 'N', 'q', 'Q':
				pages.RemovePage("kill-confirmation")
				return nil
			}
		case tcell.KeyEsc:
			pages.RemovePage("kill-confirmation")
			return nil
		}
		return event
	})

	flex := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(modal, 8, 1, true).
			AddItem(nil, 0, 1, false), 60, 1, true).
		AddItem(nil, 0, 1, false)

	pages.AddAndSwitchToPage("kill-confirmation", flex, true)
	app.SetFocus(modal)
}
