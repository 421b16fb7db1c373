// Package ui holds the human-facing outputs of the CLI: styled console
// lines, a progress observer for plain terminals and desktop
// notifications. The live dashboard lives in the tui subpackage.
package ui
