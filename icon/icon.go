// Toolbar icon toggling: shows an alternate icon while the focused window is in private (incognito) mode.
package icon

import (
	"context"
	"log/slog"
)

const (
	DefaultPath   = "icons/icon.svg"
	IncognitoPath = "icons/icon-alt.svg"
)

// Reported by the host when focus leaves all windows.
const WindowIDNone = -1

type WindowState struct {
	Incognito bool
}

type WindowSource interface {
	Window(ctx context.Context, id int) (WindowState, error)
	CurrentWindow(ctx context.Context) (WindowState, error)
}

type IconSetter interface {
	SetIcon(ctx context.Context, path string) error
}

type Toggler struct {
	Windows WindowSource
	Icons   IconSetter
	Logger  *slog.Logger
}

func PathFor(w WindowState) string {
	if w.Incognito {
		return IncognitoPath
	}
	return DefaultPath
}

// Focus-change hook. Errors are logged, never returned.
func (t *Toggler) OnFocusChanged(ctx context.Context, id int) {
	if id == WindowIDNone {
		return
	}
	w, err := t.Windows.Window(ctx, id)
	if err != nil {
		t.logger().Error("failed to update icon", "window", id, "err", err)
		return
	}
	t.apply(ctx, w)
}

// Sets the icon for the current window; called once at startup.
func (t *Toggler) Init(ctx context.Context) {
	w, err := t.Windows.CurrentWindow(ctx)
	if err != nil {
		t.logger().Error("failed to update icon", "err", err)
		return
	}
	t.apply(ctx, w)
}

func (t *Toggler) apply(ctx context.Context, w WindowState) {
	path := PathFor(w)
	if err := t.Icons.SetIcon(ctx, path); err != nil {
		t.logger().Error("failed to update icon", "path", path, "err", err)
	}
}

func (t *Toggler) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
