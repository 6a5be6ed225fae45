package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/campaign-engine/internal/handlers"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
)

// apiCommand is one console line translated into a call against the
// campaign routes. Path is relative to /v1/campaigns/{id}.
type apiCommand struct {
	Method string
	Path   string
	Body   any
}

var errEmptyCommand = errors.New("empty command")

const helpText = `Commands:
  env                      show the environment
  advance 2h30m            advance the clock (also: advance 3)
  rest short|long          take a rest
  travel <edge>            start travel along an edge
  goto <location>          set the current location
  roll [hours]             roll for a random encounter
  encounter start|end <id> start or end an encounter
  combat start <id:init>.. start combat with explicit initiative
  next                     advance combat one turn
  combat end               end combat
  eval <rule> [character]  dry-run a rule
  run <rule>               run a rule
  undo <batch>             undo an action batch
  notes [all]              list notifications
  apply|dismiss|read <id>  act on a notification
  log [n]                  show the session log
  help                     show this help
  Ctrl+Y copies the last response, Ctrl+C quits`

// parseCommand turns a console line into an API call. Local commands such
// as help are handled by the caller before this is reached.
func parseCommand(input string) (*apiCommand, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(input)))
	if len(fields) == 0 {
		return nil, errEmptyCommand
	}
	args := fields[1:]

	switch fields[0] {
	case "env", "environment":
		return &apiCommand{Method: http.MethodGet, Path: "/environment"}, nil

	case "advance":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: advance <duration>")
		}
		h, m, err := parseGameDuration(args[0])
		if err != nil {
			return nil, err
		}
		return &apiCommand{Method: http.MethodPost, Path: "/time/advance",
			Body: handlers.AdvanceTimeRequest{Hours: h, Minutes: m}}, nil

	case "rest":
		if len(args) != 1 || (args[0] != "short" && args[0] != "long") {
			return nil, fmt.Errorf("usage: rest short|long")
		}
		return &apiCommand{Method: http.MethodPost, Path: "/rest",
			Body: handlers.RestRequest{RestType: args[0]}}, nil

	case "travel":
		id, err := oneID(args, "travel <edge>")
		if err != nil {
			return nil, err
		}
		return &apiCommand{Method: http.MethodPost, Path: "/travel",
			Body: handlers.TravelRequest{EdgeID: id}}, nil

	case "goto":
		id, err := oneID(args, "goto <location>")
		if err != nil {
			return nil, err
		}
		return &apiCommand{Method: http.MethodPost, Path: "/location",
			Body: handlers.LocationRequest{LocationID: id}}, nil

	case "roll":
		hours := 1.0
		if len(args) > 0 {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid hours %q", args[0])
			}
			hours = v
		}
		return &apiCommand{Method: http.MethodPost, Path: "/encounters/roll",
			Body: handlers.EncounterRollRequest{Hours: hours}}, nil

	case "encounter":
		if len(args) != 2 || (args[0] != "start" && args[0] != "end") {
			return nil, fmt.Errorf("usage: encounter start|end <id>")
		}
		id, err := oneID(args[1:], "encounter start|end <id>")
		if err != nil {
			return nil, err
		}
		return &apiCommand{Method: http.MethodPost, Path: fmt.Sprintf("/encounters/%d/%s", id, args[0])}, nil

	case "next":
		return &apiCommand{Method: http.MethodPost, Path: "/combat/next-turn"}, nil

	case "combat":
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: combat start|end")
		}
		switch args[0] {
		case "end":
			return &apiCommand{Method: http.MethodDelete, Path: "/combat"}, nil
		case "next":
			return &apiCommand{Method: http.MethodPost, Path: "/combat/next-turn"}, nil
		case "start":
			body, err := parseCombatants(args[1:])
			if err != nil {
				return nil, err
			}
			return &apiCommand{Method: http.MethodPost, Path: "/combat", Body: body}, nil
		}
		return nil, fmt.Errorf("unknown combat command %q", args[0])

	case "eval":
		if len(args) == 0 || len(args) > 2 {
			return nil, fmt.Errorf("usage: eval <rule> [character]")
		}
		rid, err := oneID(args[:1], "eval <rule> [character]")
		if err != nil {
			return nil, err
		}
		req := handlers.EvaluateRuleRequest{}
		if len(args) == 2 {
			cid, err := oneID(args[1:], "eval <rule> [character]")
			if err != nil {
				return nil, err
			}
			req.CharacterID = &cid
		}
		return &apiCommand{Method: http.MethodPost, Path: fmt.Sprintf("/rules/%d/evaluate", rid), Body: req}, nil

	case "run":
		rid, err := oneID(args, "run <rule>")
		if err != nil {
			return nil, err
		}
		return &apiCommand{Method: http.MethodPost, Path: fmt.Sprintf("/rules/%d/run", rid)}, nil

	case "undo":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: undo <batch>")
		}
		return &apiCommand{Method: http.MethodPost, Path: "/batches/" + args[0] + "/undo"}, nil

	case "notes", "notifications":
		path := "/notifications?unread=true"
		if len(args) > 0 && args[0] == "all" {
			path = "/notifications?include_dismissed=true"
		}
		return &apiCommand{Method: http.MethodGet, Path: path}, nil

	case "apply", "dismiss", "read":
		id, err := oneID(args, fields[0]+" <notification>")
		if err != nil {
			return nil, err
		}
		return &apiCommand{Method: http.MethodPost, Path: fmt.Sprintf("/notifications/%d/%s", id, fields[0])}, nil

	case "log":
		limit := 20
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid limit %q", args[0])
			}
			limit = n
		}
		return &apiCommand{Method: http.MethodGet, Path: fmt.Sprintf("/log?limit=%d", limit)}, nil
	}
	return nil, fmt.Errorf("unknown command %q, type help for a list", fields[0])
}

// parseGameDuration accepts Go durations ("2h30m", "45m") or a bare number
// of hours.
func parseGameDuration(raw string) (int, int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return 0, 0, fmt.Errorf("duration must be positive")
		}
		return n, 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < time.Minute {
		return 0, 0, fmt.Errorf("duration must be at least one minute")
	}
	total := int(d / time.Minute)
	return total / 60, total % 60, nil
}

// parseCombatants reads "id:initiative" pairs.
func parseCombatants(args []string) (*combat.StartRequest, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: combat start <character:initiative>...")
	}
	req := &combat.StartRequest{AdvanceTime: true}
	for _, a := range args {
		id, rawInit, ok := strings.Cut(a, ":")
		if !ok {
			return nil, fmt.Errorf("combatant %q must be character:initiative", a)
		}
		cid, err := strconv.ParseInt(id, 10, 64)
		if err != nil || cid <= 0 {
			return nil, fmt.Errorf("invalid character id %q", id)
		}
		n, err := strconv.Atoi(rawInit)
		if err != nil {
			return nil, fmt.Errorf("invalid initiative %q", rawInit)
		}
		req.Combatants = append(req.Combatants, campaign.Combatant{CharacterID: cid, Initiative: n})
	}
	return req, nil
}

func oneID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}
