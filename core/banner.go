package core

import (
	"fmt"

	"github.com/fatih/color"
)

const VERSION = "1.0.0"

func putAsciiArt(s string) {
	for _, c := range s {
		d := string(c)
		switch c {
		case '_':
			color.Set(color.FgHiMagenta)
		case '\\', '/', '(', ')':
			color.Set(color.FgMagenta)
		default:
			color.Set(color.FgHiWhite)
		}
		fmt.Print(d)
		color.Unset()
	}
}

func printLogo() {
	putAsciiArt("                _ _            _   \n" +
		" __   _____  __(_) |_ __   ___| |_ \n" +
		" \\ \\ / / _ \\/ _| | | '_ \\ / _ \\ __|\n" +
		"  \\ V /  __/ (_| | | | | |  __/ |_ \n" +
		"   \\_/ \\___|\\___|_|_|_| |_|\\___|\\__|\n")
}

func printUpdateName() {
	nameClr := color.New(color.FgHiRed)
	txt := nameClr.Sprintf("       per-request circuit isolation")
	fmt.Fprintf(color.Output, "%s", txt)
}

func printOneliner() {
	handleClr := color.New(color.FgHiBlue)
	versionClr := color.New(color.FgGreen)
	textClr := color.New(color.FgHiBlack)
	spc := "                      "
	txt := textClr.Sprintf("%sby the veilnet project", spc) + handleClr.Sprintf(" ") + textClr.Sprintf("version") + versionClr.Sprintf(" %s", VERSION)
	fmt.Fprintf(color.Output, "%s", txt)
}

func Banner() {
	fmt.Println()
	printLogo()
	printUpdateName()
	fmt.Println()
	printOneliner()
	fmt.Println()
	fmt.Println()
}
