package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the chatbot knowledge base",
}

var kbImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update entries from a YAML file, matched by question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		entries, err := parseKB(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return withConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			res, err := importKB(ctx, cfg.Store.KB, entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d\n", res.created, res.updated)
			return nil
		})
	},
}

func init() {
	kbCmd.AddCommand(kbImportCmd)
}

// kbFile accepts either a bare list or {entries: [...]}.
type kbFile struct {
	Entries []models.KBEntry `yaml:"entries"`
}

func parseKB(r io.Reader) ([]models.KBEntry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var list []models.KBEntry
	if err := yaml.Unmarshal(raw, &list); err != nil {
		var wrapped kbFile
		if err2 := yaml.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, err
		}
		list = wrapped.Entries
	}

	for i, e := range list {
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("entry %d: question and answer are required", i+1)
		}
	}
	return list, nil
}

type importResult struct {
	created int
	updated int
}

func importKB(ctx context.Context, repo store.KnowledgeBase, entries []models.KBEntry) (importResult, error) {
	var res importResult
	for _, e := range entries {
		question := strings.TrimSpace(e.Question)
		keywords := workflow.CleanList(e.Keywords)

		existing, err := repo.FindByQuestion(ctx, question)
		if err == nil {
			err = repo.Update(ctx, existing.ID, bson.M{
				"answer":   strings.TrimSpace(e.Answer),
				"keywords": keywords,
				"category": strings.TrimSpace(e.Category),
			})
			if err != nil {
				return res, err
			}
			res.updated++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return res, err
		}

		now := time.Now().UTC()
		entry := &models.KBEntry{
			ID:        primitive.NewObjectID(),
			Question:  question,
			Answer:    strings.TrimSpace(e.Answer),
			Keywords:  keywords,
			Category:  strings.TrimSpace(e.Category),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Create(ctx, entry); err != nil {
			return res, err
		}
		res.created++
	}
	return res, nil
}
