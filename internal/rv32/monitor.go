package rv32

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"
)

// Monitor feeds UART transmit bytes through a virtual terminal emulator so a
// plain-text snapshot of the guest console screen can be captured without an
// attached pty. It is write-only: replies the emulator would normally queue
// for the guest (cursor position reports, device attribute queries) are
// silenced rather than drained, since nothing reads them back.
type Monitor struct {
	emu *vt.SafeEmulator
}

func NewMonitor(cols, rows int) *Monitor {
	emu := vt.NewSafeEmulator(cols, rows)
	silenceStatusReports(emu)
	return &Monitor{emu: emu}
}

func silenceStatusReports(emu *vt.SafeEmulator) {
	emu.RegisterCsiHandler('n', func(params ansi.Params) bool {
		n, _, ok := params.Param(0, 1)
		return ok && (n == 5 || n == 6)
	})
	emu.RegisterCsiHandler(ansi.Command('?', 0, 'n'), func(params ansi.Params) bool {
		n, _, ok := params.Param(0, 1)
		return ok && n == 6
	})
}

func (mon *Monitor) Write(p []byte) (int, error) {
	if mon == nil || mon.emu == nil {
		return len(p), nil
	}
	return mon.emu.Write(p)
}

// Snapshot renders the current screen grid as plain text lines, trimmed of
// trailing blanks.
func (mon *Monitor) Snapshot() []string {
	if mon == nil || mon.emu == nil {
		return nil
	}
	w, h := mon.emu.Width(), mon.emu.Height()
	lines := make([]string, h)
	for y := 0; y < h; y++ {
		var b strings.Builder
		for x := 0; x < w; {
			cell := mon.emu.CellAt(x, y)
			content := " "
			width := 1
			if cell != nil {
				if cell.Content != "" {
					content = cell.Content
				}
				if cell.Width > 1 {
					width = cell.Width
				}
			}
			b.WriteString(content)
			x += width
		}
		lines[y] = strings.TrimRight(b.String(), " ")
	}
	return lines
}

func (mon *Monitor) Close() error {
	if mon == nil || mon.emu == nil {
		return nil
	}
	return mon.emu.Close()
}
