package platform

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/montanaflynn/stats"
	"github.com/rivo/tview"
	"lautenbacher.net/ppmswitch/ppm"
)

const (
	maxPulseHistory = 500
	viewerTitle     = " PPMSWITCH Pulse Viewer "
)

// PulseViewer is a TUI component for watching the measured pulse widths
// on real hardware.
type PulseViewer struct {
	tuiApp   *tview.Application
	view     *tview.TextView
	history  *deque.Deque[float64]
	lastSeen uint64
	mu       sync.Mutex
	running  atomic.Bool
	ossignal chan os.Signal
}

type pulseStats struct {
	min    float64
	max    float64
	mean   float64
	median float64
	stdDev float64
}

func NewPulseViewer(ossignal chan os.Signal) *PulseViewer {
	pv := &PulseViewer{
		tuiApp:   tview.NewApplication(),
		history:  new(deque.Deque[float64]),
		ossignal: ossignal,
	}
	pv.history.Grow(maxPulseHistory)
	return pv
}

// Start runs the TUI until stopSignal is closed. It should be called as a
// goroutine.
func (pv *PulseViewer) Start(stopSignal <-chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	pv.setupUI()

	go func() {
		<-stopSignal
		slog.Info("Stopping PulseViewer TUI...")
		pv.running.Store(false)
		pv.tuiApp.Stop()
	}()

	pv.running.Store(true)
	if err := pv.tuiApp.Run(); err != nil {
		slog.Error("Error running PulseViewer TUI", "error", err)
		pv.ossignal <- os.Interrupt
	}
	pv.running.Store(false)
	slog.Info("PulseViewer TUI has stopped.")
}

// Update records the latest sample of st, if it is a new one, and
// schedules a redraw. It is safe for concurrent use.
func (pv *PulseViewer) Update(st ppm.Status) {
	pv.mu.Lock()
	pv.record(st)
	text := pv.prepareDisplayText(st)
	pv.mu.Unlock()

	if pv.running.Load() {
		pv.tuiApp.QueueUpdateDraw(func() {
			pv.view.SetText(text)
		})
	}
}

// record must be called with the mutex held.
func (pv *PulseViewer) record(st ppm.Status) {
	if st.Samples == pv.lastSeen {
		return
	}
	pv.lastSeen = st.Samples
	if pv.history.Len() == maxPulseHistory {
		pv.history.PopFront()
	}
	pv.history.PushBack(float64(st.LastSample))
}

func (pv *PulseViewer) setupUI() {
	pv.view = tview.NewTextView()
	pv.view.SetDynamicColors(true)
	pv.view.SetTextAlign(tview.AlignLeft)
	pv.view.SetBackgroundColor(tcell.ColorDarkSlateGray)
	pv.view.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" PPMSWITCH ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText("Displaying measured pulse widths in ticks.\nHit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config file and restart")
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 4, 1, false)
	layout.AddItem(pv.view, 7, 1, true)

	pv.tuiApp.SetRoot(layout, true).SetFocus(pv.view)
	pv.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			pv.ossignal <- os.Interrupt
			return nil
		case 'r', 'R':
			pv.ossignal <- syscall.SIGHUP
			return nil
		}
		return event
	})
}

// prepareDisplayText must be called with the mutex held.
func (pv *PulseViewer) prepareDisplayText(st ppm.Status) string {
	data := make([]float64, pv.history.Len())
	for i := range pv.history.Len() {
		data[i] = pv.history.At(i)
	}
	ps := calculatePulseStats(data)

	var buf strings.Builder
	fmt.Fprintf(&buf, "[yellow]%-24s[white] %d of %d (%s)\n", " Calibration", st.Collected, st.Required, st.Phase)
	fmt.Fprintf(&buf, "[yellow]%-24s[white] %d|%d|%d\n", " Thresholds [b|n|f]", st.Thresholds.Backward, st.Thresholds.Neutral, st.Thresholds.Forward)
	fmt.Fprintf(&buf, "[yellow]%-24s[white] [%5.0f|%5.0f|%5.0f]\n", " [min|mean|max]", ps.min, ps.mean, ps.max)
	fmt.Fprintf(&buf, "[yellow]%-24s[white] %5.0f / %5.1f\n", " Median / Std. Deviation", ps.median, ps.stdDev)
	fmt.Fprintf(&buf, "[yellow]%-24s[white] %d (%d dropped)", " Samples", st.Samples, st.Dropped)
	return buf.String()
}

func calculatePulseStats(data []float64) pulseStats {
	if len(data) == 0 {
		return pulseStats{}
	}
	stat := stats.LoadRawData(data)
	var ps pulseStats
	ps.min, _ = stat.Min()
	ps.max, _ = stat.Max()
	ps.mean, _ = stat.Mean()
	ps.mean, _ = stats.Round(ps.mean, 0)
	ps.median, _ = stat.Median()
	ps.stdDev, _ = stat.StandardDeviation()
	return ps
}
