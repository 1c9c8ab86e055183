// Package cli implements the one-shot calculator command. It runs without
// a server or storage so it can be used anywhere the binary is installed.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/glucolog/glucolog/internal/dosing"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	resultStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// RunCalc parses calculator flags, computes a suggestion, and prints it.
// Exits non-zero on invalid input.
func RunCalc(args []string) {
	if err := runCalc(args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		os.Exit(1)
	}
}

func runCalc(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("calc", flag.ExitOnError)
	carbs := fs.Float64("carbs", 0, "carbohydrates to cover, grams (required)")
	glucose := fs.Float64("glucose", 0, "current blood glucose, mg/dL (required)")
	carbRatio := fs.Float64("carb-ratio", 0, "grams covered per insulin unit (default 10)")
	sensitivity := fs.Float64("sensitivity", 0, "mg/dL drop per insulin unit (default 50)")
	target := fs.Float64("target", 0, "target glucose, mg/dL (default 100)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: glucolog calc -carbs <g> -glucose <mg/dL> [options]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	in := dosing.Input{
		Carbs:          *carbs,
		CurrentGlucose: *glucose,
	}
	// Only flags the user actually set are passed along, so an explicit
	// "-carb-ratio 0" is rejected instead of silently defaulted.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "carb-ratio":
			in.CarbRatio = carbRatio
		case "sensitivity":
			in.SensitivityFactor = sensitivity
		case "target":
			in.TargetGlucose = target
		}
	})

	result, err := dosing.Suggest(in)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, titleStyle.Render("Bolus suggestion"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, resultStyle.Render(fmt.Sprintf("%.2f units", result.SuggestedBolus)))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %.2f units  (%.0f g at 1:%.0f g/unit)\n",
		labelStyle.Render("carbs      "), result.CarbUnits, *carbs, result.CarbRatio)
	fmt.Fprintf(out, "%s %.2f units  (%.0f mg/dL vs target %.0f, %.0f mg/dL per unit)\n",
		labelStyle.Render("correction "), result.CorrectionUnits, *glucose, result.TargetGlucose, result.SensitivityFactor)
	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Render("Always confirm doses with your care plan before injecting."))
	return nil
}
