package sqlite

import (
	"encoding/json"
	"strings"
)

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func marshalGuests(guests []string) string {
	if len(guests) == 0 {
		return "[]"
	}
	data, err := json.Marshal(guests)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalGuests(raw string) []string {
	var guests []string
	if raw == "" || raw == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &guests); err != nil {
		return nil
	}
	return guests
}
