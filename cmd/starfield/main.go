// Command starfield previews the site's cosmic background in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zachkp/cosmic-portfolio/internal/cosmos"
	"github.com/Zachkp/cosmic-portfolio/internal/cosmos/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "starfield:", err)
		os.Exit(1)
	}
}

func run() error {
	field := cosmos.NewField(80*term.CellWidth, 24*term.CellHeight, nil)
	loop := cosmos.NewLoop(field, cosmos.NewParticles(cosmos.ParticleCount, nil), cosmos.FrameInterval)

	p := tea.NewProgram(term.NewModel(loop), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = loop.Run(ctx, func(f cosmos.Frame) {
			p.Send(term.FrameMsg(term.Render(f)))
		})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
