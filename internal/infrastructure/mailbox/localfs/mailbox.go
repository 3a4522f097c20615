package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/mailbox/mime"
)

const messageExt = ".eml"

// Mailbox reads *.eml files from a directory. File names sort in mailbox
// order and the file stem is the message uid.
type Mailbox struct {
	basePath string
}

func New(basePath string) (*Mailbox, error) {
	if basePath == "" {
		basePath = "./data/mail"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create mail dir: %w", err)
	}
	return &Mailbox{basePath: basePath}, nil
}

// Fetch returns the last limit messages by file name. Unreadable files are
// logged and skipped.
func (m *Mailbox) Fetch(ctx context.Context, limit int) ([]domain.RawMessage, error) {
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		return nil, fmt.Errorf("read mail dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), messageExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[len(names)-limit:]
	}

	messages := make([]domain.RawMessage, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := m.read(name)
		if err != nil {
			slog.Warn("mail_file_skipped", "file", name, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (m *Mailbox) read(name string) (domain.RawMessage, error) {
	path := filepath.Join(m.basePath, name)
	f, err := os.Open(path)
	if err != nil {
		return domain.RawMessage{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.RawMessage{}, fmt.Errorf("stat file: %w", err)
	}
	uid := strings.TrimSuffix(name, filepath.Ext(name))
	return mime.Parse(f, uid, info.ModTime())
}
