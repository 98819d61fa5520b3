package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcoot/tagmatch/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Player:
		o.printPlayer(v)
	case response.AuthResponse:
		o.printAuthResult(v)
	case response.EntryList:
		o.printEntries(v)
	case response.Entry:
		o.printEntry(v)
	case response.MatchState:
		o.printMatchState(v)
	case response.Leaderboard:
		o.printLeaderboard(v)
	case response.ContactResult:
		o.printContactResult(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func (o *Output) printPlayer(p response.Player) {
	guestStr := "no"
	if p.IsGuest {
		guestStr = "yes"
	}
	fmt.Printf("Player: %s (%s)\n", p.DisplayName, p.ID)
	fmt.Printf("Guest: %s\n", guestStr)
}

func (o *Output) printAuthResult(a response.AuthResponse) {
	o.printPlayer(a.Player)
	fmt.Printf("Token: %s\n", a.SessionToken)
	if a.IdentityToken != "" {
		fmt.Println("Identity token: issued")
	}
}

func (o *Output) printEntries(l response.EntryList) {
	if len(l.Entries) == 0 {
		fmt.Println("No open matches")
		return
	}
	fmt.Printf("Open matches (%d):\n", len(l.Entries))
	for _, e := range l.Entries {
		fmt.Printf("  - %s [%s] %d/%d players\n", e.Name, e.ID, e.MemberSize, e.MaxSize)
	}
}

func (o *Output) printEntry(e response.Entry) {
	fmt.Printf("Match: %s (%s)\n", e.Name, e.ID)
	fmt.Printf("Players: %d/%d\n", e.MemberSize, e.MaxSize)
	if code, ok := e.Data["joinCode"]; ok {
		fmt.Printf("Join Code: %s\n", code)
	}
}

func (o *Output) printMatchState(m response.MatchState) {
	fmt.Printf("Session: %s\n", m.State)
	if m.Host != "" {
		fmt.Printf("Host: %s\n", m.Host)
	}
	if m.Session != nil {
		fmt.Printf("Join Code: %s\n", m.Session.JoinCode)
		fmt.Printf("Allocation: %s\n", m.Session.AllocationID)
	}
	fmt.Printf("Connections: %d\n", m.Connections)

	if m.Match == nil {
		return
	}
	fmt.Printf("Phase: %s (%s)\n", m.Match.Status.Phase, m.Match.Status.Display)
	if len(m.Match.Participants) > 0 {
		fmt.Printf("Participants (%d):\n", len(m.Match.Participants))
		for _, p := range m.Match.Participants {
			fmt.Printf("  - %s (%d) %s, %.1fs tagged\n",
				p.Identity.DisplayName(), p.ConnectionID, p.TagStatus, p.AccumulatedTaggedSeconds)
		}
	}
}

func (o *Output) printLeaderboard(l response.Leaderboard) {
	if len(l.Standings) == 0 {
		fmt.Println("No standings yet")
		return
	}
	for i, s := range l.Standings {
		fmt.Printf("%2d. %s (%d) %ds\n", i+1, s.Username, s.ConnectionID, s.TaggedSeconds)
	}
}

func (o *Output) printContactResult(c response.ContactResult) {
	if c.Transferred {
		fmt.Println("Tag transferred")
	} else {
		fmt.Println("No transfer")
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
}
