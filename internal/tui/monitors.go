package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/xkit/xwin"
)

// renderMonitorsOverlay draws the RandR monitor arrangement as a boxed
// overlay centered in the content area.
func renderMonitorsOverlay(monitors []xwin.Monitor, err error, loaded bool, areaW, areaH int) string {
	boxW := areaW - 8
	if boxW > 80 {
		boxW = 80
	}
	if boxW < 30 {
		boxW = 30
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var body string
	switch {
	case err != nil:
		body = alertStyle.Render("Error: " + err.Error())
	case !loaded:
		body = dimStyle.Render("querying monitors...")
	case len(monitors) == 0:
		body = dimStyle.Render("no active monitors")
	default:
		canvasW := boxW - 6
		canvasH := areaH - 10
		if canvasH < 6 {
			canvasH = 6
		}
		if canvasH > 16 {
			canvasH = 16
		}
		lines := renderMonitorCanvas(monitors, canvasW, canvasH)
		body = strings.Join(lines, "\n") + "\n" + dimStyle.Render(summarizeMonitors(monitors))
	}

	title := titleStyle.Render("Monitors")
	footer := dimStyle.Render("m/esc: close")
	content := title + "\n\n" + body + "\n\n" + footer

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(boxW).
		Render(content)

	return lipgloss.Place(areaW, areaH, lipgloss.Center, lipgloss.Center, box)
}

// summarizeMonitors describes the virtual screen in one line.
func summarizeMonitors(monitors []xwin.Monitor) string {
	if len(monitors) == 0 {
		return "no monitors"
	}
	minX, minY, maxX, maxY := virtualBounds(monitors)
	if len(monitors) == 1 {
		return fmt.Sprintf("1 monitor • %d×%d px", maxX-minX, maxY-minY)
	}
	return fmt.Sprintf("%d monitors • virtual %d×%d px", len(monitors), maxX-minX, maxY-minY)
}

func virtualBounds(monitors []xwin.Monitor) (minX, minY, maxX, maxY int) {
	minX, minY = monitors[0].X, monitors[0].Y
	maxX = monitors[0].X + monitors[0].Width
	maxY = monitors[0].Y + monitors[0].Height
	for _, mon := range monitors[1:] {
		if mon.X < minX {
			minX = mon.X
		}
		if mon.Y < minY {
			minY = mon.Y
		}
		if mon.X+mon.Width > maxX {
			maxX = mon.X + mon.Width
		}
		if mon.Y+mon.Height > maxY {
			maxY = mon.Y + mon.Height
		}
	}
	return minX, minY, maxX, maxY
}

// renderMonitorCanvas draws each monitor as a labeled box scaled onto a
// character canvas covering the virtual screen.
func renderMonitorCanvas(monitors []xwin.Monitor, width, height int) []string {
	if len(monitors) == 0 || width < 5 || height < 3 {
		return emptyCanvas(width, height)
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	minX, minY, maxX, maxY := virtualBounds(monitors)
	virtW := maxX - minX
	virtH := maxY - minY
	if virtW < 1 {
		virtW = 1
	}
	if virtH < 1 {
		virtH = 1
	}

	for _, mon := range monitors {
		label := fmt.Sprintf("%s %d×%d", mon.Name, mon.Width, mon.Height)
		drawMonitor(canvas, mon.X-minX, mon.Y-minY, mon.Width, mon.Height, label, virtW, virtH, width, height)
	}

	drawBorder(canvas, width, height)

	lines := make([]string, height)
	for i, row := range canvas {
		lines[i] = string(row)
	}
	return lines
}

// drawMonitor maps one monitor's root-coordinate rectangle onto the canvas
// and draws it as a box with a centered label.
func drawMonitor(canvas [][]rune, x, y, w, h int, label string, virtW, virtH, canvasW, canvasH int) {
	x1 := x * canvasW / virtW
	y1 := y * canvasH / virtH
	x2 := (x + w) * canvasW / virtW
	y2 := (y + h) * canvasH / virtH

	// Clamp inside the outer border.
	if x1 < 1 {
		x1 = 1
	}
	if y1 < 1 {
		y1 = 1
	}
	if x2 >= canvasW-1 {
		x2 = canvasW - 2
	}
	if y2 >= canvasH-1 {
		y2 = canvasH - 2
	}
	if x2 <= x1 || y2 <= y1 {
		return
	}

	for cx := x1; cx <= x2; cx++ {
		canvas[y1][cx] = '─'
		canvas[y2][cx] = '─'
	}
	for cy := y1; cy <= y2; cy++ {
		canvas[cy][x1] = '│'
		canvas[cy][x2] = '│'
	}
	canvas[y1][x1] = '┌'
	canvas[y1][x2] = '┐'
	canvas[y2][x1] = '└'
	canvas[y2][x2] = '┘'

	runes := []rune(label)
	if room := x2 - x1 - 1; len(runes) > room && room > 0 {
		runes = runes[:room]
	}
	centerY := (y1 + y2) / 2
	startX := (x1+x2)/2 - len(runes)/2
	for i, r := range runes {
		if startX+i > x1 && startX+i < x2 {
			canvas[centerY][startX+i] = r
		}
	}
}

func drawBorder(canvas [][]rune, width, height int) {
	for x := 0; x < width; x++ {
		canvas[0][x] = '═'
		canvas[height-1][x] = '═'
	}
	for y := 0; y < height; y++ {
		canvas[y][0] = '║'
		canvas[y][width-1] = '║'
	}
	canvas[0][0] = '╔'
	canvas[0][width-1] = '╗'
	canvas[height-1][0] = '╚'
	canvas[height-1][width-1] = '╝'
}

func emptyCanvas(width, height int) []string {
	lines := make([]string, height)
	empty := strings.Repeat(" ", width)
	for i := range lines {
		lines[i] = empty
	}
	return lines
}
