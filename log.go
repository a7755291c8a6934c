package vfat

import (
	"context"
	"log/slog"
)

// slogLevelTrace sits below slog.LevelDebug so that per-block-access
// tracing can be enabled independently of ordinary debug logging.
const slogLevelTrace = slog.LevelDebug - 2

func (fsys *FS) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if fsys.log != nil {
		fsys.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

func (fsys *FS) trace(msg string, attrs ...slog.Attr) { fsys.logattrs(slogLevelTrace, msg, attrs...) }
func (fsys *FS) debug(msg string, attrs ...slog.Attr) { fsys.logattrs(slog.LevelDebug, msg, attrs...) }
func (fsys *FS) info(msg string, attrs ...slog.Attr)  { fsys.logattrs(slog.LevelInfo, msg, attrs...) }
func (fsys *FS) warn(msg string, attrs ...slog.Attr)  { fsys.logattrs(slog.LevelWarn, msg, attrs...) }
func (fsys *FS) logerror(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelError, msg, attrs...)
}
