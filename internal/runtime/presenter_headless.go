//go:build headless

package runtime

import (
	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/sysconrad/headless"
)

// newPresenter builds the null/headless presenter (internal/sysconrad/
// headless) when built with -tags headless, for CI and "exit on
// disconnect" test-mode runs that must not require a display.
func newPresenter(refreshRateHz int) (compositor.Presenter, func()) {
	return headless.New(refreshRateHz), func() {}
}
