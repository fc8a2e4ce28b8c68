/*
Package cli provides helpers shared by the ascent commands.

Output Formatting:

Command results are either plain values, printed with %v, or a Table:

	table := &cli.Table{Headers: []string{"ID", "TIER"}}
	table.Append("42", "Agent")
	if err := cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Tables render as aligned columns in text, as CSV, or as a list of
objects keyed by header in JSON.

Scan Progress:

	progress := cli.NewScanProgress(os.Stderr)
	progress.Start(0)
	progress.Step(upgraded)
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
