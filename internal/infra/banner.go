package infra

import (
	"fmt"
	"io"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner writes the startup banner with the endpoints in use.
func PrintBanner(w io.Writer, cfg *Config) {
	color := ColorCyan
	endpoint := cfg.RPC.URL
	if len(endpoint) > 36 {
		endpoint = endpoint[:33] + "..."
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#                                                         #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#               Conversion Invoice Pricer                 #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#                                                         #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#   RPC:     %-36s #%s\n", color, endpoint, ColorReset)
	fmt.Fprintf(w, "%s#   LISTEN:  %-36s #%s\n", color, cfg.Server.ListenAddr, ColorReset)
	fmt.Fprintf(w, "%s#   VERSION: %-36s #%s\n", color, cfg.App.Version, ColorReset)
	fmt.Fprintf(w, "%s#                                                         #%s\n", color, ColorReset)

	if cfg.RPC.TimeoutSec == 0 {
		fmt.Fprintf(w, "%s#   WARNING: RPC TIMEOUT DISABLED, HUNG CALLS NEVER END   #%s\n", ColorYellow, ColorReset)
	}

	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintln(w)
}
