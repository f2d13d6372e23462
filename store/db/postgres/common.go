package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
)

// placeholder returns a positional placeholder for PostgreSQL ($1, $2, ...)
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n positional placeholders for PostgreSQL
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
