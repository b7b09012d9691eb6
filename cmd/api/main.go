// Command api runs the dual-currency settlement service.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ayo6706/dual-currency-settlement/internal/app"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

// exitInvariant tells supervisors not to restart blindly: the books need a
// human before the service takes traffic again.
const exitInvariant = 3

func main() {
	err := app.Run(os.Args[1:])
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "settlement service: %v\n", err)
	if errors.Is(err, domain.ErrInvariantViolated) {
		os.Exit(exitInvariant)
	}
	os.Exit(1)
}
