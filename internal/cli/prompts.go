package cli

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"
)

var marketIDPattern = regexp.MustCompile(`^([0-9]+|0x[0-9a-fA-F]{64})$`)

// ValidateMarketID accepts a numeric Gamma id or a 0x condition id.
func ValidateMarketID(val interface{}) error {
	str, _ := val.(string)
	str = strings.TrimSpace(str)
	if str == "" {
		return fmt.Errorf("market id cannot be empty")
	}
	if !marketIDPattern.MatchString(str) {
		return fmt.Errorf("use a numeric market id or a 0x condition id")
	}
	return nil
}

// PromptForMarketID asks for the market to analyse.
func PromptForMarketID() (string, error) {
	var id string
	prompt := &survey.Input{
		Message: "Enter the Polymarket market id:",
		Help:    "The numeric id from the Gamma API or the 0x... condition id of the market",
	}
	if err := survey.AskOne(prompt, &id, survey.WithValidator(ValidateMarketID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
