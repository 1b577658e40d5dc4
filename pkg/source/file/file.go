// Package file reads documents from a local YAML or plain text file.
//
// YAML files hold a list of {source, content} records. Any other file is split
// into one document per blank-line separated paragraph.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/barekit/relnotes/pkg/knowledge"
	"gopkg.in/yaml.v3"
)

// Source reads documents from a file on every FetchAll.
type Source struct {
	path string
}

// New creates a Source for path.
func New(path string) *Source {
	return &Source{path: path}
}

type record struct {
	Source  string `yaml:"source"`
	Content string `yaml:"content"`
}

func (s *Source) FetchAll(ctx context.Context) ([]knowledge.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		var records []record
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
		docs := make([]knowledge.Document, len(records))
		for i, r := range records {
			if strings.TrimSpace(r.Content) == "" {
				return nil, fmt.Errorf("%s: record %d has no content", s.path, i+1)
			}
			src := r.Source
			if src == "" {
				src = s.path + "#" + strconv.Itoa(i+1)
			}
			docs[i] = knowledge.Document{Source: src, Content: r.Content}
		}
		return docs, nil

	default:
		var docs []knowledge.Document
		for _, para := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			docs = append(docs, knowledge.Document{
				Source:  s.path + "#" + strconv.Itoa(len(docs)+1),
				Content: para,
			})
		}
		return docs, nil
	}
}
