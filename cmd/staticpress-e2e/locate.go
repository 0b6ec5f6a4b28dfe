package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/driver/htmldriver"
)

type locateFlags struct {
	text  string
	exact string
	attr  string
	xpath string
	css   string
}

var locateOpts locateFlags

var locateCmd = &cobra.Command{
	Use:   "locate <file.html>",
	Short: "Resolve a locator against a saved HTML page",
	Long: `Locate loads a saved page and prints what a locator matches, in document
order. Useful for checking selectors against a page captured from a failed run.

  staticpress-e2e locate page.html --text 'a:Log In'
  staticpress-e2e locate page.html --attr 'input:value=Rebuild'
  staticpress-e2e locate page.html --xpath '//ul[@class="result-list"]/li'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := locateOpts.locator()
		if err != nil {
			return err
		}
		d, err := htmldriver.FromFile(args[0])
		if err != nil {
			return err
		}
		els, err := d.Query(cmd.Context(), loc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d match(es)\n", loc, len(els))
		for i, el := range els {
			text, err := el.Text(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%3d  %s\n", i+1, strings.Join(strings.Fields(text), " "))
		}
		return nil
	},
}

func init() {
	f := locateCmd.Flags()
	f.StringVar(&locateOpts.text, "text", "", "tag:text, element whose text contains text")
	f.StringVar(&locateOpts.exact, "exact", "", "tag:text, element whose text equals text")
	f.StringVar(&locateOpts.attr, "attr", "", "tag:attr=value, element whose attribute equals value")
	f.StringVar(&locateOpts.xpath, "xpath", "", "raw XPath expression")
	f.StringVar(&locateOpts.css, "css", "", "CSS selector")
}

// locator turns exactly one of the flags into a Locator.
func (f locateFlags) locator() (browser.Locator, error) {
	var (
		locs []browser.Locator
		errs []error
	)
	if f.text != "" {
		tag, text, ok := strings.Cut(f.text, ":")
		if !ok || tag == "" {
			errs = append(errs, fmt.Errorf("--text wants tag:text, got %q", f.text))
		}
		locs = append(locs, browser.ByText(tag, text))
	}
	if f.exact != "" {
		tag, text, ok := strings.Cut(f.exact, ":")
		if !ok || tag == "" {
			errs = append(errs, fmt.Errorf("--exact wants tag:text, got %q", f.exact))
		}
		locs = append(locs, browser.ByExactText(tag, text))
	}
	if f.attr != "" {
		tag, rest, ok := strings.Cut(f.attr, ":")
		name, value, ok2 := strings.Cut(rest, "=")
		if !ok || !ok2 || tag == "" || name == "" {
			errs = append(errs, fmt.Errorf("--attr wants tag:attr=value, got %q", f.attr))
		}
		locs = append(locs, browser.ByAttribute(tag, name, value))
	}
	if f.xpath != "" {
		locs = append(locs, browser.XPath(f.xpath))
	}
	if f.css != "" {
		locs = append(locs, browser.CSS(f.css))
	}
	if err := errors.Join(errs...); err != nil {
		return browser.Locator{}, err
	}
	if len(locs) != 1 {
		return browser.Locator{}, errors.New("give exactly one of --text, --exact, --attr, --xpath, --css")
	}
	return locs[0], nil
}
