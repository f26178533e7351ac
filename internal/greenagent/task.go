package greenagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	TagWhite     = "white_agent_url_1"
	TagBlack     = "white_agent_url_2"
	TagEnvConfig = "env_config"
)

var openTag = regexp.MustCompile(`<([A-Za-z0-9_.-]+)>`)

// ParseTags collects <name>value</name> pairs in order of appearance. Values
// are trimmed; a name may repeat.
func ParseTags(s string) map[string][]string {
	out := make(map[string][]string)
	pos := 0
	for pos < len(s) {
		loc := openTag.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		name := s[pos+loc[2] : pos+loc[3]]
		bodyStart := pos + loc[1]
		end := strings.Index(s[bodyStart:], "</"+name+">")
		if end < 0 {
			pos = bodyStart
			continue
		}
		out[name] = append(out[name], strings.TrimSpace(s[bodyStart:bodyStart+end]))
		pos = bodyStart + end + len(name) + 3
	}
	return out
}

// Task is a parsed benchmark request.
type Task struct {
	White     string
	Black     string
	EnvConfig map[string]any
}

// ParseTask extracts both peer URLs and the optional env config from text.
func ParseTask(text string) (Task, error) {
	tags := ParseTags(text)
	first := func(name string) string {
		if v := tags[name]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	t := Task{
		White: strings.TrimRight(first(TagWhite), "/"),
		Black: strings.TrimRight(first(TagBlack), "/"),
	}
	if t.White == "" || t.Black == "" {
		return Task{}, errors.New("task must name <" + TagWhite + "> and <" + TagBlack + ">")
	}
	if raw := first(TagEnvConfig); raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.EnvConfig); err != nil {
			return Task{}, fmt.Errorf("invalid <%s>: %w", TagEnvConfig, err)
		}
	}
	return t, nil
}

// TaskText renders the request a launcher sends to the green agent.
func TaskText(white, black string, env map[string]any) (string, error) {
	if env == nil {
		env = map[string]any{"env": "chess"}
	}
	cfg, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Task: instantiate chess benchmark to test the agents located at:\n")
	fmt.Fprintf(&b, "<%s>\n%s\n</%s>\n", TagWhite, white, TagWhite)
	fmt.Fprintf(&b, "<%s>\n%s\n</%s>\n", TagBlack, black, TagBlack)
	b.WriteString("You should use the following env configuration:\n")
	fmt.Fprintf(&b, "<%s>\n%s\n</%s>\n", TagEnvConfig, cfg, TagEnvConfig)
	return b.String(), nil
}
