package rules

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

var placeholder = regexp.MustCompile(`\{(character|environment|var)\.([A-Za-z0-9_]+)\}`)

// Render substitutes {character.name}, {character.<attribute>},
// {environment.<field>} and {var.<name>} tokens. Tokens that cannot be
// resolved are left as written.
func Render(text string, ec *ExecContext) string {
	if ec == nil {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(tok string) string {
		m := placeholder.FindStringSubmatch(tok)
		if v, ok := lookup(ec, m[1], m[2]); ok {
			return v
		}
		return tok
	})
}

func lookup(ec *ExecContext, scope, key string) (string, bool) {
	switch scope {
	case "character":
		c := ec.Character
		if c == nil {
			return "", false
		}
		switch key {
		case "name":
			return c.Name, true
		case "type":
			return string(c.Type), true
		case "id":
			return strconv.FormatInt(c.ID, 10), true
		}
		v, ok := c.Attributes[key]
		if !ok {
			return "", false
		}
		return format(v), true

	case "environment":
		env := ec.Environment
		if env == nil {
			return "", false
		}
		switch key {
		case "weather":
			return env.Weather, true
		case "notes":
			return env.Notes, true
		case "time":
			return fmt.Sprintf("%02d:%02d", env.Hour, env.Minute), true
		case "time_of_day":
			return ec.TimeOfDay, ec.TimeOfDay != ""
		case "hour":
			return strconv.Itoa(env.Hour), true
		case "minute":
			return strconv.Itoa(env.Minute), true
		case "day":
			return strconv.Itoa(env.Day), true
		case "month":
			return strconv.Itoa(env.Month), true
		case "year":
			return strconv.Itoa(env.Year), true
		}

	case "var":
		v, ok := ec.Vars[key]
		if !ok {
			return "", false
		}
		return format(v), true
	}
	return "", false
}

func format(v any) string {
	if f, ok := campaign.ToFloat(v); ok {
		if _, isString := v.(string); !isString {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return fmt.Sprint(v)
}
