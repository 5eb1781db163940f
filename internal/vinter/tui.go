package vinter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ulikunitz/xz"
)

// stepLog is one pipeline stage's log, read back from build/logs. Finished
// stages are xz-compressed, the currently running one is plain text.
type stepLog struct {
	path    string
	name    string
	content string
}

var (
	tuiApp          *tview.Application
	tuiLogs         []stepLog
	tuiActiveIdx    int
	tuiPrevIdx      int
	tuiHeaderBox    *tview.TextView
	tuiLogView      *tview.TextView
	tuiFooterBox    *tview.TextView
	tuiPrevContent  map[string]string
	tuiShouldScroll bool
)

// runLogTUI displays every stage log of the current build area, refreshing
// while a build is running in another terminal.
func runLogTUI() int {
	tuiPrevContent = make(map[string]string)
	tuiPrevIdx = -1

	tuiApp = tview.NewApplication()

	tuiHeaderBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tuiHeaderBox.SetBorder(true)
	tuiHeaderBox.SetTitle("vinter build logs")

	tuiLogView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			tuiApp.Draw()
		})
	tuiLogView.SetBorder(true)

	tuiFooterBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	tuiFooterBox.SetBorder(true)
	tuiFooterBox.SetText("[gray]Press 'q' to quit | ← → (or h/l) to switch stages | ↑ ↓ to scroll | Home/End to jump[white]")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tuiHeaderBox, 3, 0, false).
		AddItem(tuiLogView, 0, 1, true).
		AddItem(tuiFooterBox, 3, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			tuiApp.Stop()
			return nil
		case tcell.KeyLeft:
			switchStage(-1)
			return nil
		case tcell.KeyRight:
			switchStage(1)
			return nil
		case tcell.KeyHome:
			tuiLogView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			tuiLogView.ScrollToEnd()
			return nil
		case tcell.KeyUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 0 {
				tuiLogView.ScrollTo(row-1, 0)
			}
			return nil
		case tcell.KeyDown:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+1, 0)
			return nil
		case tcell.KeyPgUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 10 {
				tuiLogView.ScrollTo(row-10, 0)
			} else {
				tuiLogView.ScrollToBeginning()
			}
			return nil
		case tcell.KeyPgDn:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+10, 0)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				tuiApp.Stop()
				return nil
			case 'h':
				switchStage(-1)
				return nil
			case 'l':
				switchStage(1)
				return nil
			}
		}
		return event
	})

	// A build running in another terminal keeps appending to the newest
	// log, so poll and redraw.
	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			logs := readStepLogs()
			tuiApp.QueueUpdateDraw(func() {
				applyLogs(logs)
			})
		}
	}()

	tuiApp.SetRoot(flex, true).SetFocus(tuiLogView)

	tuiLogs = readStepLogs()
	tuiActiveIdx = len(tuiLogs) - 1 // open on the most recent stage
	if tuiActiveIdx < 0 {
		tuiActiveIdx = 0
	}
	updateLogTUI()

	if err := tuiApp.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		return 1
	}
	return 0
}

func switchStage(delta int) {
	if len(tuiLogs) == 0 {
		return
	}
	tuiActiveIdx = (tuiActiveIdx + delta + len(tuiLogs)) % len(tuiLogs)
	tuiShouldScroll = true
	updateLogTUI()
}

// applyLogs swaps in a fresh snapshot while keeping focus on the stage the
// user is looking at.
func applyLogs(logs []stepLog) {
	var currentPath string
	if tuiActiveIdx < len(tuiLogs) {
		currentPath = tuiLogs[tuiActiveIdx].path
	}

	tuiLogs = logs
	if currentPath != "" {
		for i, l := range tuiLogs {
			if l.path == currentPath {
				tuiActiveIdx = i
				break
			}
		}
	}
	if tuiActiveIdx >= len(tuiLogs) {
		tuiActiveIdx = len(tuiLogs) - 1
	}
	if tuiActiveIdx < 0 {
		tuiActiveIdx = 0
	}
	updateLogTUI()
}

func updateLogTUI() {
	if tuiApp == nil || tuiHeaderBox == nil || tuiLogView == nil {
		return
	}

	if len(tuiLogs) == 0 || tuiActiveIdx >= len(tuiLogs) {
		tuiHeaderBox.SetText("[gray]No build logs found[white]")
		tuiLogView.SetText("No build log yet. Run 'vinter build <tag>' to start a build.")
		return
	}

	cur := tuiLogs[tuiActiveIdx]
	tuiHeaderBox.SetText(fmt.Sprintf("[gray]Stage %d/%d: %s (%s)[white]",
		tuiActiveIdx+1, len(tuiLogs), cur.name, cur.path))

	prevContent, hadPrev := tuiPrevContent[cur.path]
	switchedTabs := tuiPrevIdx != tuiActiveIdx
	if switchedTabs {
		tuiPrevIdx = tuiActiveIdx
	}
	if cur.content == prevContent && !switchedTabs {
		return
	}

	row, _ := tuiLogView.GetScrollOffset()

	tuiLogView.Clear()
	fmt.Fprint(tview.ANSIWriter(tuiLogView), cur.content)

	switch {
	case switchedTabs || tuiShouldScroll:
		tuiLogView.ScrollToEnd()
		tuiShouldScroll = false
	case hadPrev:
		// content grew in place: follow the tail
		tuiLogView.ScrollToEnd()
	default:
		tuiLogView.ScrollTo(row, 0)
	}
	tuiPrevContent[cur.path] = cur.content
}

// readStepLogs loads every stage log in execution order; the numeric prefix
// runStep writes makes lexical order the right one.
func readStepLogs() []stepLog {
	var paths []string
	for _, pat := range []string{"*.log", "*.log.xz"} {
		m, _ := filepath.Glob(filepath.Join(logDir(), pat))
		paths = append(paths, m...)
	}
	if len(paths) == 0 {
		return nil
	}
	sort.Strings(paths)

	logs := make([]stepLog, 0, len(paths))
	for _, p := range paths {
		content, err := readLogFile(p)
		if err != nil {
			content = fmt.Sprintf("failed to read log: %v", err)
		}
		name := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(p), ".xz"), ".log")
		logs = append(logs, stepLog{path: p, name: name, content: content})
	}
	return logs
}

// readLogFile reads a stage log, transparently decompressing finished ones.
func readLogFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("xz reader: %w", err)
		}
		r = xr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// showStepLog prints a single stage's log through the pager. name matches by
// substring, so 'vinter logs freeze' finds the freeze stage whatever its
// step number.
func showStepLog(name string) error {
	logs := readStepLogs()
	for _, l := range logs {
		if strings.Contains(l.name, name) {
			return runPager(l.name, l.content)
		}
	}
	return fmt.Errorf("no log matching %q under %s", name, logDir())
}
