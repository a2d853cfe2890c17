package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sparkcore/host/ecu"
	"sparkcore/telemetry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
	alarmStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func field(label, value string) string {
	return labelStyle.Render(label+" ") + value
}

// renderStatus draws one poll as a bordered panel.
func renderStatus(s *telemetry.Snapshot) string {
	sync := valueStyle.Render("half")
	if s.FullSync {
		sync = valueStyle.Render("full")
	}
	if s.RPM == 0 {
		sync = warnStyle.Render("none")
	}

	cut := valueStyle.Render(s.Cut)
	if s.Cut != "none" {
		cut = warnStyle.Render(fmt.Sprintf("%s %d%%", s.Cut, s.RollingPercent))
	}
	protect := valueStyle.Render("-")
	if len(s.Protect) > 0 {
		protect = warnStyle.Render(strings.Join(s.Protect, ","))
	}

	lines := []string{
		titleStyle.Render("sparkcore"),
		strings.Join([]string{
			field("rpm", valueStyle.Render(fmt.Sprint(s.RPM))),
			field("sync", sync),
			field("revs", valueStyle.Render(fmt.Sprint(s.StartRevolutions))),
		}, "  "),
		strings.Join([]string{
			field("cut", cut),
			field("fuel", fmt.Sprintf("%08b", s.FuelMask)),
			field("ign", fmt.Sprintf("%08b", s.IgnMask)),
			field("protect", protect),
		}, "  "),
		field("fuel ", strings.Join(s.Fuel, " ")),
		field("ign  ", strings.Join(s.Ignition, " ")),
		strings.Join([]string{
			field("injections", fmt.Sprint(s.Injections)),
			field("sparks", fmt.Sprint(s.Sparks)),
			field("overdwells", fmt.Sprint(s.Overdwells)),
		}, "  "),
	}
	if s.Shutdown {
		lines = append(lines, alarmStyle.Render("EMERGENCY STOP"))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderDictionary lists constants and message ids in id order.
func renderDictionary(d *ecu.Dictionary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("version "+d.Version) + "\n")

	names := make([]string, 0, len(d.Config))
	for name := range d.Config {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(name), d.Config[name])
	}

	b.WriteString(titleStyle.Render("commands") + "\n")
	writeMessages(&b, d.Commands)
	b.WriteString(titleStyle.Render("responses") + "\n")
	writeMessages(&b, d.Responses)
	return b.String()
}

func writeMessages(b *strings.Builder, entries map[string]int) {
	type entry struct {
		id  int
		msg string
	}
	list := make([]entry, 0, len(entries))
	for msg, id := range entries {
		list = append(list, entry{id, msg})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	for _, e := range list {
		fmt.Fprintf(b, "  %3d %s\n", e.id, e.msg)
	}
}

// renderHistory prints one line per recorded snapshot.
func renderHistory(session string, snaps []telemetry.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("session "+session) + "\n")
	for _, s := range snaps {
		at := time.UnixMilli(s.Time).Format("15:04:05.000")
		line := fmt.Sprintf("%s rpm=%d cut=%s injections=%d sparks=%d",
			at, s.RPM, s.Cut, s.Injections, s.Sparks)
		if s.Shutdown {
			line += " " + alarmStyle.Render("ESTOP")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
