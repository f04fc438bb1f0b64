package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"courtsync/internal/portal"
	"courtsync/internal/report"
)

var (
	currentStatus string
	plainReport   bool
)

// classifyCmd runs the status rules on free text.
var classifyCmd = &cobra.Command{
	Use:   "classify <movement text>",
	Short: "Classify movement text into a case status",
	Example: `  courtsync classify "Baixa definitiva dos autos, Guia nº 5512/2024"
  courtsync classify --current Recebido ""`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := portal.ParseStatus(currentStatus)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), portal.ClassifyStatus(strings.Join(args, " "), current))
		return nil
	},
}

// seedFile is the YAML layout accepted by seed.
type seedFile struct {
	Cases []portal.CaseRecord `yaml:"cases"`
}

// seedCmd loads cases into the local store.
var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load cases from a YAML file into the local store",
	Long: `Reads a file of the form

  cases:
    - id: 0001234-56.2023.8.26.0050
      tribunal: STJ
    - id: HC 812345
      tribunal: STF
      status: Em trâmite

Existing records keep their fields; only their status is replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		var f seedFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parse seed file: %w", err)
		}
		for i := range f.Cases {
			f.Cases[i].Tribunal = portal.Tribunal(strings.ToUpper(string(f.Cases[i].Tribunal)))
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := st.Seed(commandContext(cmd), f.Cases)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d cases\n", n)
		return nil
	},
}

// confirmCmd applies suggested statuses.
var confirmCmd = &cobra.Command{
	Use:   "confirm <STF|STJ>",
	Short: "Apply the statuses suggested by the last runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTribunalArg(args[0])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := st.ConfirmSuggested(commandContext(cmd), t)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d statuses updated\n", t, n)
		return nil
	},
}

// reportCmd prints the stored status distribution.
var reportCmd = &cobra.Command{
	Use:   "report <STF|STJ>",
	Short: "Show the status distribution of a tribunal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTribunalArg(args[0])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		counts, err := st.CountByStatus(commandContext(cmd), t)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report.Distribution(t, counts))
		return nil
	},
}
