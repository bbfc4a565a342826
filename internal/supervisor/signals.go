package supervisor

import (
	"context"
	"os"
	"os/signal"
)

// installSignals returns a context cancelled when one of sigs arrives. The
// returned func releases the signal registration.
func installSignals(parent context.Context, sigs []os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, sigs...)
}
