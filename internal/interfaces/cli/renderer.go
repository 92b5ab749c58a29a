package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
)

// brand colors
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

// Renderer handles terminal output: stage progress, ranking tables, and the
// chairman answer as styled markdown.
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

// NewRenderer creates a renderer with the given terminal width
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &Renderer{
		glamour: r,
		width:   width,
	}
}

// RenderMarkdown renders markdown text to styled terminal output
func (r *Renderer) RenderMarkdown(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// StageLine renders one progress line for a council event.
func (r *Renderer) StageLine(ev service.Event) string {
	pending := lipgloss.NewStyle().Foreground(colorDimCyan)
	done := lipgloss.NewStyle().Foreground(colorGreen)
	detail := lipgloss.NewStyle().Foreground(colorGray)
	flag := lipgloss.NewStyle().Foreground(colorYellow)

	switch ev.Type {
	case service.EventStage1Start:
		return pending.Render("◇ Stage 1") + detail.Render(" · generators drafting...")
	case service.EventStage1Complete:
		return done.Render("✓ Stage 1") + detail.Render(fmt.Sprintf(" · %d answers", ev.Count))
	case service.EventStage2Start:
		return pending.Render("◇ Stage 2") + detail.Render(" · peers ranking...")
	case service.EventStage2Complete:
		line := done.Render("✓ Stage 2") + detail.Render(fmt.Sprintf(" · %d verdicts", ev.Count))
		if ev.Adjudicated {
			line += flag.Render(" (adjudicated)")
		}
		return line
	case service.EventStage3Start:
		return pending.Render("◇ Stage 3") + detail.Render(" · chairman synthesizing...")
	case service.EventStage3Complete:
		return done.Render("✓ Stage 3") + detail.Render(" · "+ev.Model)
	default:
		return ""
	}
}

// RenderAggregate renders the council standings, best first.
func (r *Renderer) RenderAggregate(meta entity.Meta) string {
	header := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	model := lipgloss.NewStyle().Foreground(colorWhite)
	detail := lipgloss.NewStyle().Foreground(colorGray)
	bad := lipgloss.NewStyle().Foreground(colorRed)

	var b strings.Builder
	b.WriteString(header.Render("Council standings") + "\n")
	rank := 0
	for _, agg := range meta.AggregateRankings {
		if agg.Disqualified {
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				bad.Render("✗"),
				model.Render(agg.Model),
				detail.Render("disqualified: "+strings.Join(agg.DisqualifyReasons, ", ")),
			))
			continue
		}
		rank++
		votes := ""
		if agg.RankingsCount > 0 {
			votes = detail.Render(fmt.Sprintf("  avg %.2f over %d votes", agg.AverageRank, agg.RankingsCount))
		} else {
			votes = detail.Render("  unranked")
		}
		b.WriteString(fmt.Sprintf("  %s %s%s\n",
			detail.Render(fmt.Sprintf("%d.", rank)),
			model.Render(agg.Model),
			votes,
		))
	}
	return b.String()
}

// RenderResult renders the full deliberation outcome: standings, then the
// chairman answer (or the stage-level failure).
func (r *Renderer) RenderResult(res *entity.CouncilResult) string {
	var b strings.Builder
	b.WriteString(r.RenderAggregate(res.Meta))
	b.WriteString("\n")

	if res.Stage3.Error != "" && strings.TrimSpace(res.Stage3.Response) == "" {
		errStyle := lipgloss.NewStyle().Foreground(colorRed)
		b.WriteString(errStyle.Render("✗ synthesis failed: " + res.Stage3.Error))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(r.RenderMarkdown(res.Stage3.Response))
	b.WriteString("\n")
	if res.Stage3.RepairUsed {
		note := lipgloss.NewStyle().Foreground(colorGray)
		b.WriteString(note.Render("(contract repair pass applied)") + "\n")
	}
	return b.String()
}
