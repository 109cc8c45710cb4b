package cli

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ashahba/transfer-learning/dataset"
)

// DatasetsListAction is the corresponding Action for 'datasets list'.
func DatasetsListAction(cCtx *cli.Context) error {
	c, err := newTltClient(cCtx)
	if err != nil {
		return err
	}
	return c.datasetsListAction(cCtx)
}

func (t *tltClient) datasetsListAction(cCtx *cli.Context) error {
	for i, name := range t.catalog.Names() {
		if i == 0 {
			printf(cCtx.App.Writer, "Datasets served from %q:", t.conf.Root)
		}
		entry, err := t.catalog.Entry(name)
		if err != nil {
			return err
		}
		splits := make([]string, 0, len(entry.Splits))
		for _, s := range entry.Splits {
			splits = append(splits, string(s))
		}
		printf(cCtx.App.Writer, "\t%s (splits: %s)", name, strings.Join(splits, ", "))
	}
	return nil
}

// DatasetsShowAction is the corresponding Action for 'datasets show'.
func DatasetsShowAction(cCtx *cli.Context) error {
	c, err := newTltClient(cCtx)
	if err != nil {
		return err
	}
	name := cCtx.Args().First()
	if name == "" {
		return errors.New("dataset name required")
	}
	return c.datasetsShowAction(cCtx, name)
}

func (t *tltClient) datasetsShowAction(cCtx *cli.Context, name string) error {
	entry, err := t.catalog.Entry(name)
	if err != nil {
		return err
	}
	printf(cCtx.App.Writer, "Name: %s", entry.Name)
	if entry.Description != "" {
		printf(cCtx.App.Writer, "Description: %s", entry.Description)
	}
	if len(entry.ClassNames) != 0 {
		printf(cCtx.App.Writer, "Classes: %s", strings.Join(entry.ClassNames, ", "))
	}
	printf(cCtx.App.Writer, "Splits:")
	for _, s := range entry.Splits {
		path, err := t.catalog.SplitFile(name, dataset.Split(s))
		if err != nil {
			return err
		}
		printf(cCtx.App.Writer, "\t%s: %s", s, path)
	}
	return nil
}
