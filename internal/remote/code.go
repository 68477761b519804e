package remote

import (
	"fmt"
	"strings"
)

// Code is a remote-control key. The numeric value is what the box expects in the key query parameter.
type Code int

const (
	Null    Code = -1
	OK      Code = 0
	Left    Code = 1
	Down    Code = 2
	Right   Code = 3
	Up      Code = 4
	Back    Code = 5
	Home    Code = 6
	Menu    Code = 7
	Power   Code = 8
	VolUp   Code = 9
	VolDown Code = 10
)

var codeNames = map[Code]string{
	Null:    "null",
	OK:      "ok",
	Left:    "left",
	Down:    "down",
	Right:   "right",
	Up:      "up",
	Back:    "back",
	Home:    "home",
	Menu:    "menu",
	Power:   "power",
	VolUp:   "vol_up",
	VolDown: "vol_down",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Valid reports whether c is a key the box understands. Null is not.
func (c Code) Valid() bool {
	return c >= OK && c <= VolDown
}

// ParseCode maps a key name ("ok", "vol_up", "VOL-DOWN") to its Code.
func ParseCode(name string) (Code, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for c, s := range codeNames {
		if s == n && c != Null {
			return c, nil
		}
	}
	return Null, fmt.Errorf("unknown key %q", name)
}
