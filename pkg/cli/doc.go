/*
Package cli provides the building blocks shared by the loom commands.

Output Formatting:

Commands print results as a table or as JSON, chosen by --output:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Results implement Tabular to control their columns.

Progress Reporting:

One-shot operations over many channels report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(channels)))
	...
	progress.Update(done)
	progress.Finish()

Exit Codes:

ExitCode maps command errors to the process exit status: configuration
errors exit with 2, failed probes with 3 and everything else with 1.
*/
package cli
