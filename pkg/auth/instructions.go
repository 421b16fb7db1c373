package auth

import (
	"fmt"
	"io"
)

// WriteSessionGuide explains how to copy the session cookies out of a
// logged-in browser
func WriteSessionGuide(w io.Writer) {
	steps := []string{
		"Log in at https://www.instagram.com with the account used for fetching.",
		"Open the developer tools (F12, or Cmd+Option+I on macOS).",
		"Go to Application (Chrome) or Storage (Firefox) > Cookies > https://www.instagram.com.",
		"Copy the value of the sessionid cookie; it contains %3A sequences.",
		"Optionally copy csrftoken, a string of about 32 characters.",
	}

	fmt.Fprintln(w, "citystories reads public timelines with a logged-in web session.")
	fmt.Fprintln(w)
	for i, s := range steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, s)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The session grants full access to that account. Use a secondary account and never share the values.")
}
