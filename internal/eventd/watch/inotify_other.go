//go:build !linux

package watch

import (
	"errors"
	"log/slog"
)

func newInotifySource(dir string, _ *Matcher, _ *slog.Logger) (Source, error) {
	return nil, registrationError(dir, errors.New("the inotify backend is only available on linux, use fsnotify"))
}
