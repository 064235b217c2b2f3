package main

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// isTTY returns true if the given file descriptor is a terminal.
func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

var bannerLines = []string{
	`                                                      `,
	`   __ _  ___  _ __   __ _  ___ _ __ _   _  __| |    `,
	`  / _' |/ _ \| '_ \ / _' |/ __| '__| | | |/ _' |    `,
	` | (_| | (_) | |_) | (_| | (__| |  | |_| | (_| |    `,
	`  \__, |\___/| .__/ \__, |\___|_|   \__,_|\__,_|    `,
	`  |___/      |_|    |___/                           `,
	`                                                      `,
}

// Cyan to magenta, one escape per line.
var bannerColors = []string{
	"\033[1;36m",
	"\033[1;36m",
	"\033[1;96m",
	"\033[1;34m",
	"\033[1;35m",
	"\033[1;95m",
	"\033[0m",
}

// printBanner prints the gopgcrud ASCII art banner, in color when useColor
// is true.
func printBanner(w io.Writer, useColor bool) {
	for i, line := range bannerLines {
		if !useColor {
			fmt.Fprintln(w, line)
			continue
		}
		fmt.Fprintf(w, "%s%s\033[0m\n", bannerColors[i%len(bannerColors)], line)
	}
}
