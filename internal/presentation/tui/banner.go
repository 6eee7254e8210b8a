package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`    _        _             _           _   `, "#818cf8"},
	{`   / \   ___| |_ _ __ ___ | |__   ___ | |_ `, "#a78bfa"},
	{`  / _ \ / __| __| '__/ _ \| '_ \ / _ \| __|`, "#c084fc"},
	{` / ___ \\__ \ |_| | | (_) | |_) | (_) | |_ `, "#e879f9"},
	{`/_/   \_\___/\__|_|  \___/|_.__/ \___/ \__|`, "#f472b6"},
}

// PrintBanner writes the astrobot banner to w, coloured when the terminal
// supports it.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).Profile

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
