package dialog

import (
	"fmt"
	"strings"

	"advancebot/internal/core"
	"advancebot/internal/session"
)

// Reply is what the employee sees next: a text and the choices the
// transport may render as buttons. Options are suggestions; free text
// is always accepted.
type Reply struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

func menuOptions() []string {
	return []string{"add", "balance", "summary"}
}

func confirmOptions() []string {
	return []string{"confirm", "cancel"}
}

// withNav appends the navigation words every entry step accepts.
func withNav(opts []string) []string {
	return append(append([]string(nil), opts...), "back", "cancel")
}

func menuReply(name string) Reply {
	greeting := "What would you like to do?"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s. What would you like to do?", name)
	}
	return Reply{
		Text:    greeting + " Send \"add\" to record a transaction, \"balance\" for your balance, \"summary\" for month totals.",
		Options: menuOptions(),
	}
}

func unknownCommandReply(name string) Reply {
	r := menuReply(name)
	r.Text = "I did not recognize that. " + r.Text
	return r
}

func askNameReply() Reply {
	return Reply{Text: "You are not registered yet. What name should the ledger use? (at least 2 characters)"}
}

func nameRejectedReply(reason string) Reply {
	return Reply{Text: "That does not work as a name: " + reason + ". Try again."}
}

func directionPrompt(dirs []core.Direction) Reply {
	opts := make([]string, 0, len(dirs))
	for _, d := range dirs {
		opts = append(opts, string(d))
	}
	return Reply{
		Text:    "Did you receive money (IN) or spend it (OUT)?",
		Options: withNav(opts),
	}
}

func categoryPrompt(cats []string) Reply {
	return Reply{Text: "Pick a category.", Options: withNav(cats)}
}

func typePrompt(types []string) Reply {
	return Reply{Text: "Pick a type.", Options: withNav(types)}
}

func amountPrompt() Reply {
	return Reply{
		Text:    "Enter the amount, e.g. 1250.50 (dot or comma, up to two decimals).",
		Options: []string{"back", "cancel"},
	}
}

func descriptionPrompt() Reply {
	return Reply{
		Text:    "Add a short description.",
		Options: []string{"back", "cancel"},
	}
}

func rejectedReply(reason string, again Reply) Reply {
	again.Text = reason + " " + again.Text
	return again
}

func confirmationPrompt(d session.Draft) Reply {
	return Reply{
		Text: fmt.Sprintf("Please confirm: %s %s / %s, amount %s, %q.",
			d.Direction, d.Category, d.Type, d.Amount, d.Description),
		Options: confirmOptions(),
	}
}

func cancelledReply() Reply {
	return Reply{Text: "Entry cancelled. Nothing was recorded.", Options: menuOptions()}
}

func catalogChangedReply() Reply {
	return Reply{
		Text:    "The catalog changed while you were entering this transaction and that combination is no longer offered. Entry cancelled; please start over.",
		Options: menuOptions(),
	}
}

func storeTroubleReply(what string) Reply {
	return Reply{
		Text:    fmt.Sprintf("The ledger is not reachable right now, so I could not %s. Please try again in a moment.", what),
		Options: menuOptions(),
	}
}

func commitRetryReply() Reply {
	return Reply{
		Text:    "Writing to the ledger failed. Nothing was recorded. Send \"confirm\" to try again or \"cancel\" to drop the entry.",
		Options: confirmOptions(),
	}
}

func monthPrompt(months []core.Month) Reply {
	opts := make([]string, 0, len(months)+1)
	// Most recent first; the list arrives oldest first.
	for i := len(months) - 1; i >= 0; i-- {
		opts = append(opts, months[i].String())
	}
	return Reply{
		Text:    "Which month? Pick one or type it as MM.YYYY.",
		Options: append(opts, "cancel"),
	}
}

func summaryReply(s core.MonthlySummary) Reply {
	return Reply{
		Text: fmt.Sprintf("%s: received %s, spent %s, net %s over %d transactions.",
			s.Month, s.TotalIn, s.TotalOut, s.Net(), s.Count),
		Options: menuOptions(),
	}
}

func balanceReplyText(b core.Money) Reply {
	return Reply{Text: fmt.Sprintf("Current balance: %s.", b), Options: menuOptions()}
}

func committedReply(tx core.Transaction, balance *core.Money) Reply {
	text := fmt.Sprintf("Recorded %s %s / %s for %s.",
		tx.Direction, tx.Category, tx.Type, tx.Amount)
	if balance != nil {
		text += fmt.Sprintf(" Current balance: %s.", *balance)
	}
	return Reply{Text: text, Options: menuOptions()}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isCancel(s string) bool {
	switch normalize(s) {
	case "cancel", "/cancel", "stop", "abort", "no":
		return true
	}
	return false
}

func isBack(s string) bool {
	switch normalize(s) {
	case "back", "/back":
		return true
	}
	return false
}

func isAffirm(s string) bool {
	switch normalize(s) {
	case "confirm", "/confirm", "yes", "y", "ok":
		return true
	}
	return false
}

// matchOption finds input among the offered choices, returning the
// catalog's canonical spelling.
func matchOption(input string, opts []string) (string, bool) {
	needle := strings.TrimSpace(input)
	for _, o := range opts {
		if strings.EqualFold(o, needle) {
			return o, true
		}
	}
	return "", false
}
