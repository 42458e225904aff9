// Command costar-sim runs the widget runtime in a terminal, rendering
// the 320x240 framebuffer as half-block cells. Mouse clicks act as
// touches.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	costar "github.com/ab0oo/costar-sub000"
)

const tickEvery = 100 * time.Millisecond

type tickMsg time.Time

type model struct {
	app    *costar.App
	fb     *costar.MemFramebuffer
	scale  int
	status string
}

func main() {
	var (
		layout  = flag.String("layout", "assets/layout.json", "layout document")
		dslDir  = flag.String("dsl", "assets/dsl", "widget DSL directory")
		iconDir = flag.String("icons", ".costar-icons", "icon download cache")
		dbPath  = flag.String("db", ".costar-sim.db", "key/value store")
		scale   = flag.Int("scale", 0, "downscale factor (0 = fit terminal)")
	)
	flag.Parse()

	fb := costar.NewMemFramebuffer(costar.ScreenW, costar.ScreenH)
	app, err := costar.NewApp(costar.Config{
		LayoutPath: *layout,
		DSLDir:     *dslDir,
		IconDir:    *iconDir,
		DBPath:     *dbPath,
	}, fb)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}

	m := model{app: app, fb: fb, scale: *scale}
	if m.scale <= 0 {
		m.scale = fitScale()
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fitScale picks the smallest integer downscale that fits the panel in
// the current terminal.
func fitScale() int {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 2
	}
	for s := 1; s <= 4; s++ {
		if costar.ScreenW/s <= w && costar.ScreenH/s/2 < h {
			return s
		}
	}
	return 4
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			x := msg.X * m.scale
			y := msg.Y * 2 * m.scale
			m.app.Touch(x, y)
			m.status = fmt.Sprintf("touch %d,%d", x, y)
		}

	case tickMsg:
		m.app.Step(m.app.NowMs())
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	w := costar.ScreenW / m.scale
	h := costar.ScreenH / m.scale

	// two vertical pixels per cell via the upper half block
	for row := 0; row < h; row += 2 {
		for col := 0; col < w; col++ {
			top := m.fb.Get(col*m.scale, row*m.scale)
			bottom := costar.ColorBlack
			if row+1 < h {
				bottom = m.fb.Get(col*m.scale, (row+1)*m.scale)
			}
			b.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(hexColor(top))).
				Background(lipgloss.Color(hexColor(bottom))).
				Render("▀"))
		}
		b.WriteByte('\n')
	}

	footer := lipgloss.NewStyle().Faint(true).
		Render(fmt.Sprintf("q quit · click to touch · 1/%d scale  %s", m.scale, m.status))
	b.WriteString(footer)
	return b.String()
}

func hexColor(c costar.RGB565) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}
