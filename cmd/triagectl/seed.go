package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

type seedFile struct {
	Articles []seedArticle `yaml:"articles"`
}

type seedArticle struct {
	ID     string   `yaml:"id"`
	Title  string   `yaml:"title"`
	Body   string   `yaml:"body"`
	Tags   []string `yaml:"tags"`
	Status string   `yaml:"status"`
}

// loadSeed parses a KB seed file. Articles default to published.
func loadSeed(r io.Reader) ([]domain.Article, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	articles := make([]domain.Article, 0, len(file.Articles))
	for i, a := range file.Articles {
		title := strings.TrimSpace(a.Title)
		body := strings.TrimSpace(a.Body)
		if title == "" || body == "" {
			return nil, fmt.Errorf("article %d: title and body are required", i+1)
		}
		status := domain.ArticleStatus(strings.ToLower(strings.TrimSpace(a.Status)))
		switch status {
		case "":
			status = domain.ArticleStatusPublished
		case domain.ArticleStatusDraft, domain.ArticleStatusPublished:
		default:
			return nil, fmt.Errorf("article %d: unknown status %q", i+1, a.Status)
		}
		articles = append(articles, domain.Article{
			ID:     strings.TrimSpace(a.ID),
			Title:  title,
			Body:   body,
			Tags:   a.Tags,
			Status: status,
		})
	}
	return articles, nil
}
