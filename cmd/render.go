package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/types"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted  = ac("240", "243")
	colorAccent = ac("25", "75")
	colorDone   = ac("241", "245")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	doneStyle   = lipgloss.NewStyle().Foreground(colorDone)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	plainStyle  = lipgloss.NewStyle()
)

// columnGap separates table columns.
const columnGap = 2

// table lays rows out in left-aligned columns sized to their widest cell.
type table struct {
	header []string
	rows   [][]string

	// style picks the style of a body row; nil renders every row plain.
	style func(row int) lipgloss.Style
}

func (t table) render() string {
	widths := make([]int, len(t.header))
	measure := func(cells []string) {
		for i, c := range cells {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}
	measure(t.header)
	for _, r := range t.rows {
		measure(r)
	}

	line := func(cells []string, st lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			w := widths[i]
			if i < len(widths)-1 {
				w += columnGap
			}
			parts[i] = st.Width(w).Render(c)
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
	}

	var b strings.Builder
	b.WriteString(line(t.header, headerStyle))
	b.WriteByte('\n')
	for i, r := range t.rows {
		st := plainStyle
		if t.style != nil {
			st = t.style(i)
		}
		b.WriteString(line(r, st))
		b.WriteByte('\n')
	}
	return b.String()
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusAccepted:
		return "aceitou"
	case model.StatusRefused:
		return "recusou"
	}
	return "-"
}

func shiftLabel(s model.Shift) string {
	if s == model.ShiftNight {
		return "Noturno"
	}
	return "Diurno"
}

// renderQueue prints the ranked queue with the suggested agent highlighted
// and agents who already went again dimmed.
func renderQueue(q types.QueueView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Fila " + q.Label))
	b.WriteByte('\n')
	b.WriteString(mutedStyle.Render(fmt.Sprintf("política %s, mínimo de vezes %d", q.Policy, q.MinTurns)))
	b.WriteString("\n\n")

	if len(q.Standings) == 0 {
		b.WriteString(mutedStyle.Render("nenhum agente cadastrado"))
		b.WriteByte('\n')
		return b.String()
	}

	t := table{header: []string{"#", "Agente", "Saldo", "Vezes", "Última", "Quando", ""}}
	for _, s := range q.Standings {
		when := "-"
		if !s.LastActionAt.IsZero() {
			when = s.LastActionAt.Format("2006-01-02 15:04")
		}
		mark := ""
		if s.Done {
			mark = "já foi"
		}
		t.rows = append(t.rows, []string{
			strconv.Itoa(s.Position),
			s.Agent.Name,
			strconv.Itoa(s.Balance),
			strconv.Itoa(s.TurnsTaken),
			statusLabel(s.LastStatus),
			when,
			mark,
		})
	}
	t.style = func(i int) lipgloss.Style {
		switch {
		case i == 0:
			return headStyle
		case q.Standings[i].Done:
			return doneStyle
		}
		return plainStyle
	}
	b.WriteString(t.render())

	if ign := q.Ignored.Total(); ign > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d evento(s) ignorado(s)", ign)))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderCalendar prints one line per cycle day with the team on duty and the
// slots taken that day.
func renderCalendar(c types.Calendar) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Ciclo " + c.Label))
	b.WriteString("\n\n")

	t := table{header: []string{"Data", "Dia", "Equipe", "Escalados"}}
	for _, d := range c.Days {
		names := make([]string, 0, len(d.Assignments))
		for _, a := range d.Assignments {
			name := a.AgentName
			if name == "" {
				name = "..."
			}
			names = append(names, fmt.Sprintf("%s (%s)", name, shiftLabel(a.Shift)))
		}
		t.rows = append(t.rows, []string{
			fmt.Sprintf("%02d/%02d", d.Date.Day, int(d.Date.Month)),
			d.Weekday,
			d.Team.String(),
			strings.Join(names, ", "),
		})
	}
	t.style = func(i int) lipgloss.Style {
		if c.Days[i].Weekend {
			return mutedStyle
		}
		return plainStyle
	}
	b.WriteString(t.render())
	return b.String()
}

func renderTeam(v types.TeamView) string {
	return fmt.Sprintf("%s %s\n", mutedStyle.Render(v.Date.String()), titleStyle.Render(v.Team.String()))
}
