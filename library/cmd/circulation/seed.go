package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

func newSeedCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.csv>",
		Short: "Add books from a CSV file with isbn,title,author rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()

			books, err := readSeedBooks(file)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(cmd.Context()) }()

			if err = a.migrate(cmd.Context()); err != nil {
				return err
			}

			engine, err := a.newEngine()
			if err != nil {
				return err
			}

			added, skipped, err := seedBooks(cmd.Context(), engine, books)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added %d books, skipped %d existing\n", added, skipped)

			return nil
		},
	}
}

// readSeedBooks parses isbn,title,author rows. A first row starting with "isbn" is treated as header.
func readSeedBooks(r io.Reader) ([]circulation.NewBook, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var books []circulation.NewBook

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return books, nil
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "isbn") {
			continue
		}

		books = append(books, circulation.NewBook{ISBN: record[0], Title: record[1], Author: record[2]})
	}
}

// seedBooks adds the books and skips those whose ISBN already exists.
func seedBooks(ctx context.Context, engine *circulation.Engine, books []circulation.NewBook) (added, skipped int, err error) {
	for _, book := range books {
		_, addErr := engine.AddBook(ctx, book)

		switch {
		case addErr == nil:
			added++
		case errors.Is(addErr, circulation.ErrConflict):
			skipped++
		default:
			return added, skipped, addErr
		}
	}

	return added, skipped, nil
}
