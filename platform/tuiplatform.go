package platform

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/logging"
	"lautenbacher.net/ppmswitch/ppm"
	"lautenbacher.net/ppmswitch/util"
)

const stickGaugeWidth = 41

// TUIPlatform simulates receiver and outputs in the terminal. A virtual
// stick drives a generated PPM signal, the outputs and the latch state are
// shown together with the log.
type TUIPlatform struct {
	*AbstractPlatform
	tviewapp     *tview.Application
	intro        *tview.TextView
	stickView    *tview.TextView
	statusView   *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	signal       *simSignal
	firstDraw    chan bool
	logFlushOnce sync.Once
	signalWg     sync.WaitGroup
}

func NewTUIPlatform(conf *config.Config, ossignalchan chan os.Signal) *TUIPlatform {
	inst := &TUIPlatform{
		ossignalChan: ossignalchan,
		signal:       newSimSignal(conf.Simulation),
		firstDraw:    make(chan bool),
	}
	inst.AbstractPlatform = newAbstractPlatform(conf, inst.writeOutput)
	return inst
}

func (s *TUIPlatform) Start() error {
	if err := s.resetOutputs(); err != nil {
		return err
	}
	if err := s.SetDuty(s.config.Switch.PWMCompare); err != nil {
		return err
	}
	s.initSimulationTUI()

	s.signalWg.Add(1)
	go func() {
		defer s.signalWg.Done()
		select {
		case <-s.stopChan:
			return
		case <-s.firstDraw:
		}
		if !waitSettled(s.signal.Level, s.config.Switch.SettleDelay, s.stopChan) {
			return
		}
		close(s.readyChan)
		s.signal.run(s.stopChan, s.fireEdge)
		slog.Info("Ending simulated PPM signal go-routine...")
	}()
	return nil
}

func (s *TUIPlatform) Stop() {
	s.setInShutdown()
	s.signalWg.Wait()
	s.watchWg.Wait()

	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

func (s *TUIPlatform) writeOutput(out ppm.Output, on bool) error {
	slog.Debug("Simulated output set", "output", out, "on", on)
	return nil
}

func (s *TUIPlatform) SetDuty(compare uint8) error {
	s.duty.Store(uint32(compare))
	slog.Info("Simulated PWM running", "compare", compare, "frequency", s.config.Hardware.PWMFrequency)
	return nil
}

func (s *TUIPlatform) ReadLevel() bool {
	return s.signal.Level()
}

func (s *TUIPlatform) Watch(status *util.Latest[ppm.Status]) {
	s.watch(status, func(st ppm.Status) {
		text := statusText(st, s.Duty())
		s.tviewapp.QueueUpdateDraw(func() {
			s.statusView.SetText(text)
		})
	})
}

func (s *TUIPlatform) getIntroText() string {
	line1 := "Stick: [#ff0000]b[-] backward, [#ff0000]n[-] neutral, [#ff0000]f[-] forward, [#ff0000]Left/Right[-] to move"
	line2 := "Hit [#ff0000]d[-] to toggle debug logging, [#ff0000]Up/Down[-] to scroll logs"
	line3 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload"
	return fmt.Sprintf("%s\n%s\n%s", line1, line2, line3)
}

func (s *TUIPlatform) showStick() {
	s.stickView.SetText(stickText(s.signal.Position(), s.signal.Width().Microseconds()))
}

func (s *TUIPlatform) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText())
	s.intro.SetBorder(true).SetTitle(" PPMSWITCH Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.stickView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.stickView.SetBorder(true).SetTitle(" Stick ")
	s.stickView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))
	s.showStick()

	s.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.statusView.SetBorder(true).SetTitle(" Switch ")
	s.statusView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 5, 0, false).
		AddItem(s.stickView, 4, 0, false).
		AddItem(s.statusView, 8, 0, false).
		AddItem(s.logView, 0, 1, true)

	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			if err := logging.SetOutput(tview.ANSIWriter(s.logView)); err != nil {
				slog.Error("Can't attach log pane", "error", err)
			}
			close(s.firstDraw)
		})
	})

	step := s.config.Simulation.StickStep
	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.ossignalChan <- os.Interrupt
			return nil
		case tcell.KeyLeft:
			s.signal.Nudge(-step)
			s.showStick()
			return nil
		case tcell.KeyRight:
			s.signal.Nudge(step)
			s.showStick()
			return nil
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'b', 'B':
				s.signal.SetPosition(-1)
			case 'n', 'N':
				s.signal.SetPosition(0)
			case 'f', 'F':
				s.signal.SetPosition(1)
			case 'd', 'D':
				slog.Info("Log level changed", "level", logging.ToggleDebug())
				return nil
			case 'q', 'Q':
				s.ossignalChan <- os.Interrupt
				return nil
			case 'r', 'R':
				s.ossignalChan <- syscall.SIGHUP
				return nil
			default:
				return event
			}
			s.showStick()
			return nil
		}
		return event
	})

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.setInShutdown()
			s.ossignalChan <- os.Interrupt
		}
	}()
}

// stickText renders the stick gauge and the resulting pulse width.
func stickText(pos float64, widthMicros int64) string {
	return fmt.Sprintf("[%s]\n%+.2f  [yellow]%dµs[-]", stickGauge(pos, stickGaugeWidth), pos, widthMicros)
}

// stickGauge draws a horizontal bar of width cells with a marker for pos
// in [-1, 1] and the neutral center.
func stickGauge(pos float64, width int) string {
	cells := []rune(strings.Repeat("─", width))
	center := (width - 1) / 2
	cells[center] = '┼'
	idx := int(math.Round((pos + 1) / 2 * float64(width-1)))
	cells[util.Clamp(idx, 0, width-1)] = '●'
	return string(cells)
}

func onOff(on bool) string {
	if on {
		return "[#00ff00]ON [-]"
	}
	return "[#ff0000]off[-]"
}

// statusText renders a status snapshot for the switch pane.
func statusText(st ppm.Status, duty uint8) string {
	var buf strings.Builder
	if st.Phase == ppm.Calibrating {
		fmt.Fprintf(&buf, " Phase:      [yellow]calibrating[-] %d/%d samples\n", st.Collected, st.Required)
		buf.WriteString(" Thresholds: -\n")
	} else {
		buf.WriteString(" Phase:      [#00ff00]running[-]\n")
		fmt.Fprintf(&buf, " Thresholds: backward < %d < neutral %d < %d < forward\n",
			st.Thresholds.Backward, st.Thresholds.Neutral, st.Thresholds.Forward)
	}
	fmt.Fprintf(&buf, " Latch:      %s, last toggled %s\n", st.State, st.Asserted)
	fmt.Fprintf(&buf, " Forward:    %s   Backward: %s   PWM: %d/255\n", onOff(st.Forward), onOff(st.Backward), duty)
	fmt.Fprintf(&buf, " Sample:     %d ticks (%d samples, %d dropped)", st.LastSample, st.Samples, st.Dropped)
	return buf.String()
}
