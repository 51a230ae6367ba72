//go:build !headless

package runtime

import (
	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/sysconrad/ebitenpresent"
	"github.com/openxrd/openxrd/internal/telemetry"
)

// newPresenter builds the windowed debug presenter by default
// (internal/sysconrad/ebitenpresent), unless -tags headless swaps in
// the null one. Run launches ebiten's event loop in its own
// goroutine, per ebitenpresent's own doc comment; stopping is a
// no-op, the process exiting closes the debug window with it.
func newPresenter(refreshRateHz int) (compositor.Presenter, func()) {
	p := ebitenpresent.New(refreshRateHz)
	go func() {
		if err := p.Run("openxrd"); err != nil {
			telemetry.Warnf("runtime: debug presenter exited: %v", err)
		}
	}()
	return p, func() {}
}
