package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/consts"
)

// Selections are the choices of one interactive analysis.
type Selections struct {
	Ticker   string
	Date     string
	Analysts []string
	Depth    int
}

// Prompter asks the user what to analyze next.
type Prompter interface {
	Ask(defaults Selections) (Selections, error)
	Again() (bool, error)
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

func validateTicker(val interface{}) error {
	str := strings.TrimSpace(strings.ToUpper(fmt.Sprint(val)))
	if str == "" {
		return fmt.Errorf("ticker symbol cannot be empty")
	}
	if len(str) > 12 {
		return fmt.Errorf("ticker symbol too long (max 12 characters)")
	}
	if !tickerPattern.MatchString(str) {
		return fmt.Errorf("invalid ticker format (use letters, numbers, dots and hyphens only)")
	}
	return nil
}

func validateDate(val interface{}) error {
	str := strings.TrimSpace(fmt.Sprint(val))
	parsed, err := time.Parse(dateLayout, str)
	if err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	if parsed.After(time.Now().AddDate(0, 0, 1)) {
		return fmt.Errorf("analysis date cannot be more than 1 day in the future")
	}
	return nil
}

type surveyPrompter struct{}

func (surveyPrompter) Ask(defaults Selections) (Selections, error) {
	labels := make([]string, 0, len(consts.AnalystOrder))
	byLabel := make(map[string]string, len(consts.AnalystOrder))
	var chosen []string
	for _, a := range consts.AnalystOrder {
		node, _ := consts.AnalystNode(a)
		label := consts.DisplayName(node)
		labels = append(labels, label)
		byLabel[label] = a
		for _, d := range defaults.Analysts {
			if d == a {
				chosen = append(chosen, label)
			}
		}
	}
	depths := make([]string, 0, config.MaxResearchDepth)
	for d := config.MinResearchDepth; d <= config.MaxResearchDepth; d++ {
		depths = append(depths, strconv.Itoa(d))
	}

	qs := []*survey.Question{
		{
			Name: "ticker",
			Prompt: &survey.Input{
				Message: "Ticker symbol (e.g. AAPL, 0700.HK, 600519):",
				Default: defaults.Ticker,
			},
			Validate: validateTicker,
		},
		{
			Name: "date",
			Prompt: &survey.Input{
				Message: "Trade date (YYYY-MM-DD):",
				Default: defaults.Date,
			},
			Validate: validateDate,
		},
		{
			Name: "analysts",
			Prompt: &survey.MultiSelect{
				Message: "Analyst team:",
				Options: labels,
				Default: chosen,
			},
			Validate: survey.MinItems(1),
		},
		{
			Name: "depth",
			Prompt: &survey.Select{
				Message: "Research depth (more debate rounds take longer):",
				Options: depths,
				Default: strconv.Itoa(defaults.Depth),
			},
		},
	}
	answers := struct {
		Ticker   string   `survey:"ticker"`
		Date     string   `survey:"date"`
		Analysts []string `survey:"analysts"`
		Depth    string   `survey:"depth"`
	}{}
	if err := survey.Ask(qs, &answers); err != nil {
		return Selections{}, err
	}

	out := Selections{
		Ticker: strings.ToUpper(strings.TrimSpace(answers.Ticker)),
		Date:   strings.TrimSpace(answers.Date),
	}
	for _, label := range answers.Analysts {
		out.Analysts = append(out.Analysts, byLabel[label])
	}
	depth, err := strconv.Atoi(answers.Depth)
	if err != nil {
		return Selections{}, err
	}
	out.Depth = depth
	return out, nil
}

func (surveyPrompter) Again() (bool, error) {
	again := false
	err := survey.AskOne(&survey.Confirm{Message: "Analyze another ticker?", Default: false}, &again)
	return again, err
}
