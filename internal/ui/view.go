package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"usmconv/internal/model"
	"usmconv/internal/progress"
	"usmconv/internal/util/format"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(m.styles.Box.Render(m.viewRun()))
	b.WriteString("\n")
	if s := m.viewFooter(); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("usmconv")
	hint := "q: quit"
	switch {
	case m.quitting:
		hint = "cancelling… ctrl+c: exit now"
	case !m.running:
		hint = "q/enter: close"
	}
	sub := m.styles.Subtitle.Render(truncate(m.title, 60) + " • " + hint)
	return title + "\n" + sub
}

func (m Model) phaseStyle() func(...string) string {
	switch m.phase {
	case progress.PhaseAcquiring:
		return m.styles.PhaseDL.Render
	case progress.PhaseTranscodingVideo, progress.PhaseTranscodingAudio:
		return m.styles.PhaseEnc.Render
	case progress.PhaseAwaitingPackaging, progress.PhaseFinalizing, progress.PhaseUnpacking:
		return m.styles.PhasePkg.Render
	case progress.PhaseSucceeded:
		return m.styles.Success.Render
	case progress.PhaseFailed:
		return m.styles.Error.Render
	}
	return m.styles.Info.Render
}

func (m Model) viewRun() string {
	var b strings.Builder

	phase := string(m.phase)
	if !m.phase.Terminal() && m.running {
		phase = m.styles.Spinner.Render(m.spinner.View()) + " " + m.phaseStyle()(phase)
	} else {
		phase = m.phaseStyle()(phase)
	}
	b.WriteString(phase)
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %5.1f%%  ETA %s\n",
		m.bar.ViewAs(m.percent/100.0), m.percent, progress.FormatETA(m.eta))

	if m.videoStatus != "" {
		b.WriteString(m.styles.Label.Render("video") + " " + m.styles.Info.Render(m.videoStatus) + "\n")
	}
	if m.audioStatus != "" {
		b.WriteString(m.styles.Label.Render("audio") + " " + m.styles.Info.Render(m.audioStatus) + "\n")
	}

	if m.verbose {
		for _, l := range m.logs {
			b.WriteString(m.styles.Faint.Render(truncate(l, 100)))
			b.WriteString("\n")
		}
	}

	switch {
	case m.result != nil && m.result.Err == nil:
		line := "✓ " + m.message
		if m.result.OutputPath != "" {
			line += " " + filepath.Base(m.result.OutputPath)
			if m.result.Bytes > 0 {
				line += " (" + format.HumanizeBytes(m.result.Bytes) + ")"
			}
		}
		b.WriteString(m.styles.Success.Render(line))
	case m.Err() != nil:
		msg := m.message
		if msg == "" {
			msg = model.UserMessage(m.Err())
		}
		b.WriteString(m.styles.Error.Render("✗ " + msg))
		if m.verbose {
			b.WriteString("\n" + m.styles.Faint.Render(m.Err().Error()))
		}
	case m.message != "":
		b.WriteString(m.styles.Info.Render(m.message))
	}
	return b.String()
}

func (m Model) viewFooter() string {
	if m.confirming {
		return m.styles.Warning.Render("A conversion is running. Quit and cancel it? (y/N)")
	}
	return ""
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
