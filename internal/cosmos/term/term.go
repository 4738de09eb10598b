// Package term draws the cosmos animation in a terminal with bubbletea.
package term

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zachkp/cosmic-portfolio/internal/cosmos"
)

// A terminal cell stands for this many pixels of the simulated surface.
const (
	CellWidth  = 8
	CellHeight = 16
)

var (
	starStyles = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("#3a3f5c")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#7c83b0")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#c8dcff")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true),
	}
	starGlyphs = []rune{'·', '+', '*', '✦'}

	particleStyles = map[cosmos.Color]lipgloss.Style{
		cosmos.Cyan:   lipgloss.NewStyle().Foreground(tint(cosmos.Cyan)),
		cosmos.Purple: lipgloss.NewStyle().Foreground(tint(cosmos.Purple)),
	}

	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5a5f7a")).Italic(true)
)

// tint is the terminal color of a particle tint.
func tint(c cosmos.Color) lipgloss.Color {
	r, g, b := c.RGB()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}

// FrameMsg carries a rendered frame into the bubbletea program.
type FrameMsg string

// Resizer is the part of cosmos.Loop the model drives.
type Resizer interface {
	Resize(w, h float64)
}

// Model shows the latest frame and forwards terminal resizes to the loop.
type Model struct {
	loop       Resizer
	cols, rows int
	frame      string
}

// NewModel creates a model over loop.
func NewModel(loop Resizer) Model {
	return Model{loop: loop}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.cols, m.rows = msg.Width, msg.Height-1
		if m.rows < 1 {
			m.rows = 1
		}
		m.loop.Resize(float64(m.cols*CellWidth), float64(m.rows*CellHeight))
	case FrameMsg:
		m.frame = string(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.frame == "" {
		return "warming up the stars..."
	}
	return m.frame + "\n" + footerStyle.Render(fmt.Sprintf("%dx%d  q to quit", m.cols, m.rows))
}

// Render rasterizes f onto a grid of cells covering the field. Particles are
// drawn over stars.
func Render(f cosmos.Frame) string {
	cols := int(f.Field.W / CellWidth)
	rows := int(f.Field.H / CellHeight)
	if cols <= 0 || rows <= 0 {
		return ""
	}

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}

	for _, s := range f.Field.Stars {
		c, r := int(s.X/CellWidth), int(s.Y/CellHeight)
		if c < 0 || c >= cols || r < 0 || r >= rows {
			continue
		}
		lvl := brightnessLevel(f.Field.Brightness(s))
		grid[r][c] = starStyles[lvl].Render(string(starGlyphs[lvl]))
	}

	for _, p := range f.Particles {
		pose := p.Sample(f.Elapsed)
		x := p.X/100*f.Field.W + pose.DX
		y := p.Y/100*f.Field.H + pose.DY
		c, r := int(x/CellWidth), int(y/CellHeight)
		if c < 0 || c >= cols || r < 0 || r >= rows {
			continue
		}
		glyph := "•"
		if pose.Opacity*pose.Scale > 0.8 {
			glyph = "●"
		}
		grid[r][c] = particleStyles[p.Color].Render(glyph)
	}

	var b strings.Builder
	for r, row := range grid {
		if r > 0 {
			b.WriteByte('\n')
		}
		for _, cell := range row {
			b.WriteString(cell)
		}
	}
	return b.String()
}

func brightnessLevel(b float64) int {
	switch {
	case b > 0.75:
		return 3
	case b > 0.5:
		return 2
	case b > 0.3:
		return 1
	default:
		return 0
	}
}
