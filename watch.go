package stepflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/formsmith/stepflow-go/markup"
)

// WatchDocument watches a form definition file (HTML, or YAML by extension)
// and invokes onReload with the freshly parsed document whenever the file
// changes. The enclosing directory
// is watched rather than the file itself, since editors typically replace
// files on save. Blocks until ctx is done; parse failures are logged and the
// previous document stays in effect.
//
// Intended as a development aid (the CLI's run loop uses it); production
// hosts load their markup once.
func WatchDocument(ctx context.Context, path string, log *slog.Logger, onReload func(*markup.Document)) error {
	if log == nil {
		log = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			doc, err := reloadDocument(path)
			if err != nil {
				log.Warn("watch.reload_failed",
					slog.String("path", path),
					slog.String("err", err.Error()))
				continue
			}
			log.Info("watch.reloaded", slog.String("path", path))
			onReload(doc)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Debug("watch.error", slog.String("err", err.Error()))
		}
	}
}

func reloadDocument(path string) (*markup.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return markup.ParseYAML(data)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return markup.ParseHTML(f)
	}
}
