package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jo-hoe/opticderm/internal/catalog"
	"github.com/jo-hoe/opticderm/internal/descriptor"
	"github.com/urfave/cli/v3"
)

func catalogFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "catalog",
		Usage: "catalog YAML file; the embedded demo catalog is used when empty",
	}
}

func newDescribeCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "describe",
		Usage: "Print the descriptors of one biopsy region as JSON",
		Flags: []cli.Flag{
			catalogFlag(),
			&cli.StringFlag{Name: "biopsy", Usage: "biopsy ID", Required: true},
			&cli.StringFlag{Name: "roi", Usage: "ROI tag", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := openCatalog(cmd.String("catalog"))
			if err != nil {
				return err
			}
			result, err := descriptor.NewEngine(c).Describe(cmd.String("biopsy"), cmd.String("roi"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func newValidateCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a catalog file for structural errors and missing reference ranges",
		Flags: []cli.Flag{catalogFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := openCatalog(cmd.String("catalog"))
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "catalog ok: %d patients, %d descriptors\n", len(c.ListPatients()), len(c.Descriptors()))
			return err
		},
	}
}

func openCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
