package selection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"go.klb.dev/xselect/internal/x11"
)

// logTransfer logs a completed transfer at INFO (attrs plus size) and, at
// DEBUG, a preview of the payload up to 120 bytes.
func logTransfer(event string, data []byte, attrs ...any) {
	slog.Info(event, append(attrs, "size", humanize.IBytes(uint64(len(data))))...)

	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	preview := data
	suffix := ""
	if len(preview) > 120 {
		preview, suffix = preview[:120], "…"
	}
	slog.Debug("selection payload", "bytes", len(data), "preview", string(preview)+suffix)
}

func windowAttr(w x11.Window) string {
	return fmt.Sprintf("%#x", w)
}
